package admission

import (
	"fmt"
	"time"
)

// RequestContext everything known about one guarded invocation. The engine
// only reads it; build one per request.
type RequestContext struct {
	// Operation logical name of the guarded operation, e.g. "user.login"
	Operation string

	// Args positional arguments of the guarded call
	Args []interface{}

	// ParamNames optional names for Args, aligned by index
	ParamNames []string

	// Caller identity, filled from whatever transport the caller uses
	CallerIP    string
	Principal   string
	Device      string
	Application string
	UserAgent   string

	// Now evaluation instant; zero means time.Now()
	Now time.Time

	// Weight admission units this call consumes; zero means 1
	Weight int64

	// Extra free-form values usable in templates and conditions
	Extra map[string]interface{}
}

// At returns the evaluation instant.
func (rc *RequestContext) At() time.Time {
	if rc.Now.IsZero() {
		return time.Now()
	}
	return rc.Now
}

// EffectiveWeight returns the admission units consumed, at least 1.
func (rc *RequestContext) EffectiveWeight() int64 {
	if rc.Weight <= 0 {
		return 1
	}
	return rc.Weight
}

// ContextMap builds the environment used for template and condition
// evaluation. Empty identity fields are omitted so templates referencing
// them fail over to literal text. Args appear both by name and as p0..pn.
func (rc *RequestContext) ContextMap() map[string]interface{} {
	env := make(map[string]interface{}, len(rc.Args)*2+len(rc.Extra)+8)

	if rc.Operation != "" {
		env["operation"] = rc.Operation
	}
	if rc.CallerIP != "" {
		env["ip"] = rc.CallerIP
	}
	if rc.Principal != "" {
		env["principal"] = rc.Principal
	}
	if rc.Device != "" {
		env["device"] = rc.Device
	}
	if rc.Application != "" {
		env["application"] = rc.Application
	}
	if rc.UserAgent != "" {
		env["user_agent"] = rc.UserAgent
	}

	for i, arg := range rc.Args {
		env[fmt.Sprintf("p%d", i)] = arg
		if i < len(rc.ParamNames) && rc.ParamNames[i] != "" {
			env[rc.ParamNames[i]] = arg
		}
	}

	for k, v := range rc.Extra {
		env[k] = v
	}
	return env
}

// HotspotValue picks the argument value tracked by the hotspot detector:
// the first string argument, else the first argument rendered as text.
func (rc *RequestContext) HotspotValue() string {
	for _, arg := range rc.Args {
		if s, ok := arg.(string); ok {
			return s
		}
	}
	if len(rc.Args) > 0 {
		return fmt.Sprint(rc.Args[0])
	}
	return ""
}
