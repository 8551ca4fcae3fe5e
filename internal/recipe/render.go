package recipe

import (
	"fmt"
	"strconv"
	"strings"
)

// DependencyAddr is the in-cluster address of a resolved dependency, exposed
// to the release template as {{dep.<alias>.host}} and {{dep.<alias>.port}}.
type DependencyAddr struct {
	Host string
	Port int
}

// RenderEnv expands the template's env map against the resolved config and
// dependency addresses. Supported placeholders:
//
//	{{config.<field>}}    resolved config value
//	{{dep.<alias>.host}}  dependency service host
//	{{dep.<alias>.port}}  dependency service port
//
// An unresolvable placeholder is a configuration error: the recipe references
// something the install did not produce.
func (t Template) RenderEnv(config map[string]any, deps map[string]DependencyAddr) (map[string]string, error) {
	out := make(map[string]string, len(t.Env))
	for key, tmpl := range t.Env {
		rendered, err := expand(tmpl, config, deps)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", key, err)
		}
		out[key] = rendered
	}
	return out, nil
}

// RenderImage expands placeholders in the image reference. Dependency
// references are not meaningful in an image name and fail to resolve.
func (t Template) RenderImage(config map[string]any) (string, error) {
	rendered, err := expand(t.Image, config, nil)
	if err != nil {
		return "", fmt.Errorf("image: %w", err)
	}
	return rendered, nil
}

func expand(s string, config map[string]any, deps map[string]DependencyAddr) (string, error) {
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		b.WriteString(s[:start])
		ref := strings.TrimSpace(s[start+2 : start+end])
		val, err := resolveRef(ref, config, deps)
		if err != nil {
			return "", err
		}
		b.WriteString(val)
		s = s[start+end+2:]
	}
}

func resolveRef(ref string, config map[string]any, deps map[string]DependencyAddr) (string, error) {
	parts := strings.Split(ref, ".")
	switch {
	case len(parts) == 2 && parts[0] == "config":
		v, ok := config[parts[1]]
		if !ok {
			return "", fmt.Errorf("unknown config reference %q", ref)
		}
		return stringify(v), nil

	case len(parts) == 3 && parts[0] == "dep":
		addr, ok := deps[parts[1]]
		if !ok {
			return "", fmt.Errorf("unknown dependency reference %q", ref)
		}
		switch parts[2] {
		case "host":
			return addr.Host, nil
		case "port":
			return strconv.Itoa(addr.Port), nil
		}
		return "", fmt.Errorf("unknown dependency attribute %q", ref)

	default:
		return "", fmt.Errorf("unsupported template reference %q", ref)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		// Whole numbers render without a trailing ".0" so ports and sizes
		// survive the JSON number round-trip.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
