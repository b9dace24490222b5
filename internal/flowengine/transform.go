package flowengine

import (
	"encoding/json"

	"github.com/smilemakc/wmcore/internal/domain/flow"
	"github.com/smilemakc/wmcore/internal/domain/werr"
)

// resolveArgs evaluates every InputTransform in transforms against env,
// producing the argument map a module (or a child job built from it) runs
// with (§4.4's evaluation contract).
func (in *Interpreter) resolveArgs(transforms map[string]flow.InputTransform, env execEnv) (map[string]any, error) {
	out := make(map[string]any, len(transforms))
	for key, t := range transforms {
		v, err := in.resolveOne(t, env)
		if err != nil {
			return nil, werr.Wrap(werr.KindBadRequest, "resolve input "+key, err)
		}
		out[key] = v
	}
	return out, nil
}

func (in *Interpreter) resolveOne(t flow.InputTransform, env execEnv) (any, error) {
	switch t.Kind {
	case flow.TransformStatic:
		if len(t.Value) == 0 {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(t.Value, &v); err != nil {
			return nil, err
		}
		return v, nil

	case flow.TransformJavascript:
		return in.exprs.compileAndRun(t.Expr, env.toMap())

	case flow.TransformAI:
		return nil, werr.BadRequest("ai input transforms are only valid inside an ai-agent module's tool arguments")

	default:
		return nil, werr.BadRequest("unknown input transform kind: " + string(t.Kind))
	}
}
