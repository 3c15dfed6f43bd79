package manifest

import (
	"fmt"
	"strings"
)

const (
	// Production is the hosted control plane.
	Production = "prod"
	// Local is a control plane running on the developer's machine.
	Local = "local"
)

var defaultEndpoints = HTTPEndpoints{
	Poll:           "/poll",
	Progress:       "/requests/{id}/progress",
	Result:         "/requests/{id}/result",
	RegisterModels: "/models/register",
	Disconnect:     "/disconnect",
	DeviceLink:     "/auth/device",
	Token:          "/auth/token",
	Me:             "/auth/me",
}

var baseURLs = map[string]string{
	Production: "https://api.mindstudio.ai/developer/v2/local-models",
	Local:      "http://localhost:3129/developer/v2/local-models",
}

// For returns the manifest of env. A non-empty override replaces the environment's base URL.
func For(env, override string) (*Manifest, error) {
	if env == "" {
		env = Production
	}
	base, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("unknown environment %q (want %s or %s)", env, Production, Local)
	}
	if strings.TrimSpace(override) != "" {
		base = override
	}
	return &Manifest{
		Environment: env,
		BaseURL:     strings.TrimRight(base, "/"),
		HTTP:        defaultEndpoints,
	}, nil
}
