// Package actions runs the post-download pipeline: rename, unzip and
// diagnostic actions, each optionally gated by an expression over the
// asset definition and the in-progress download result.
package actions

import (
	"encoding/json"

	"github.com/serverkit/serverkit/pkg/expr"
	"github.com/serverkit/serverkit/pkg/manifest"
	"github.com/serverkit/serverkit/pkg/providers"
	"github.com/serverkit/serverkit/pkg/registry"
	"github.com/serverkit/serverkit/pkg/telemetry"
)

// Context is the execution state one handler operates on.
type Context struct {
	Env      *providers.Env
	Asset    manifest.Asset
	Download *providers.Download
	Log      *telemetry.Logger

	bindings expr.Bindings
}

// Bindings returns the expression bindings, rebuilt on every call so
// handlers that mutate the download see fresh values.
func (c *Context) Bindings() expr.Bindings {
	return buildBindings(c.Env, c.Asset, c.Download)
}

// Handler executes one action kind against the context.
type Handler func(c *Context, act manifest.Action) error

// Processor owns the handler registry and runs action pipelines.
type Processor struct {
	handlers *registry.Registry[Handler]
	log      *telemetry.Logger
}

// NewProcessor returns a processor with the built-in handlers
// registered.
func NewProcessor(log *telemetry.Logger) *Processor {
	p := &Processor{
		handlers: registry.New[Handler]("action"),
		log:      log.NewComponentLogger("actions"),
	}
	p.Register("rename", renameHandler)
	p.Register("unzip", unzipHandler)
	p.Register("dummy", dummyHandler)
	return p
}

// Register adds a handler under the given action type.
func (p *Processor) Register(typ string, h Handler) {
	p.handlers.Register(typ, h)
}

// EvalGate evaluates a gate expression to a boolean. An empty source
// passes. Evaluator faults are logged with their caret block and read
// as false; non-boolean results go through the permissive truthiness
// coercion.
func (p *Processor) EvalGate(src string, bindings expr.Bindings, log *telemetry.Logger) bool {
	if src == "" {
		return true
	}
	v, err := expr.Eval(src, bindings)
	if err != nil {
		log.Errorf("gate expression failed, treating as false:\n%s", err.CaretBlock())
		return false
	}
	result, defaulted := expr.Truthy(v)
	if defaulted {
		log.Warnf("gate expression %q produced a non-boolean %T, defaulting to true", src, v)
	}
	return result
}

// Run executes the asset's action pipeline in manifest order. A failing
// action is logged and does not stop its siblings; the number of
// failures is returned.
func (p *Processor) Run(env *providers.Env, a manifest.Asset, dl *providers.Download) int {
	specs := a.Common().Actions
	if len(specs) == 0 {
		return 0
	}
	log := p.log.WithAssetID(manifest.ResolveID(a))
	c := &Context{Env: env, Asset: a, Download: dl, Log: log}

	failed := 0
	for i, spec := range specs {
		act := spec.Action
		name := act.ActionCommon().Name
		if name == "" {
			name = act.ActionType()
		}
		alog := log.WithField("action", name)

		if !p.EvalGate(act.ActionCommon().If, c.Bindings(), alog) {
			alog.Debugf("action %d gated off", i)
			continue
		}
		handler, err := p.handlers.Require(act.ActionType())
		if err != nil {
			alog.Errorf("%v", err)
			failed++
			continue
		}
		if err := handler(c, act); err != nil {
			alog.WithError(err).Errorf("action %d failed", i)
			failed++
			continue
		}
		alog.Debugf("action %d done", i)
	}
	return failed
}

// GateBindings returns the bindings for an asset-level gate, evaluated
// before any download exists.
func GateBindings(env *providers.Env, a manifest.Asset) expr.Bindings {
	return buildBindings(env, a, nil)
}

// buildBindings exposes the download result as "data"/"d", the asset
// definition as "asset"/"a", the run environment as "env" and the
// active profile as the bare "profile" symbol. Values go through a JSON
// round trip so expressions see plain maps.
func buildBindings(env *providers.Env, a manifest.Asset, dl *providers.Download) expr.Bindings {
	b := expr.Bindings{}

	assetVal := toPlain(a)
	b["asset"] = assetVal
	b["a"] = assetVal

	if dl != nil {
		primary, _ := dl.Primary()
		files := make([]interface{}, len(dl.Files))
		for i, f := range dl.Files {
			files[i] = f
		}
		data := map[string]interface{}{
			"files":   files,
			"primary": primary,
		}
		if m, ok := toPlain(dl.Record).(map[string]interface{}); ok {
			for k, v := range m {
				if _, exists := data[k]; !exists {
					data[k] = v
				}
			}
		}
		b["data"] = data
		b["d"] = data
	}

	b["env"] = map[string]interface{}{
		"profile":       env.Profile,
		"mc_version":    env.GameVersion,
		"server_folder": env.ServerRoot,
	}
	b["profile"] = env.Profile
	return b
}

func toPlain(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}
