package admission

// Dimension the axis along which quota is tracked.
type Dimension string

const (
	// DimensionGlobal one shared quota for everything
	DimensionGlobal Dimension = "global"

	// DimensionIP quota per caller address
	DimensionIP Dimension = "ip"

	// DimensionPrincipal quota per authenticated principal
	DimensionPrincipal Dimension = "principal"

	// DimensionOperation quota per guarded operation
	DimensionOperation Dimension = "operation"

	// DimensionParameter quota per parameter value (enables hotspot detection)
	DimensionParameter Dimension = "parameter"

	// DimensionDevice quota per device identifier
	DimensionDevice Dimension = "device"

	// DimensionApplication quota per application identifier
	DimensionApplication Dimension = "application"

	// DimensionCustom key produced by a registered key generator
	DimensionCustom Dimension = "custom"

	// DimensionComposite ip + principal + operation combined
	DimensionComposite Dimension = "composite"
)

// Valid reports whether the dimension is one of the known values.
func (d Dimension) Valid() bool {
	switch d {
	case DimensionGlobal, DimensionIP, DimensionPrincipal, DimensionOperation,
		DimensionParameter, DimensionDevice, DimensionApplication,
		DimensionCustom, DimensionComposite:
		return true
	}
	return false
}

// dimensionNames for validation rules.
func dimensionNames() []interface{} {
	return []interface{}{
		string(DimensionGlobal), string(DimensionIP), string(DimensionPrincipal),
		string(DimensionOperation), string(DimensionParameter), string(DimensionDevice),
		string(DimensionApplication), string(DimensionCustom), string(DimensionComposite),
	}
}
