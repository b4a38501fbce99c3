// Package hostinfo builds the static Resource identity of the monitored
// process. Detection is best-effort: probe failures degrade to a partial
// attribute set, never to an error.
package hostinfo

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/Artur-Abalov/Kortex-agent/internal/trace"
)

// Detect assembles resource attributes for the current process.
func Detect(serviceName, serviceVersion, environment string) trace.Resource {
	attrs := []trace.KeyValue{
		trace.String("service.name", serviceName),
	}
	if serviceVersion != "" {
		attrs = append(attrs, trace.String("service.version", serviceVersion))
	}
	if environment != "" {
		attrs = append(attrs, trace.String("deployment.environment", environment))
	}

	attrs = append(attrs, trace.String("telemetry.sdk.language", "go"))

	if info, err := host.Info(); err == nil {
		attrs = append(attrs,
			trace.String("host.name", info.Hostname),
			trace.String("os.type", info.OS),
		)
	} else if hostname, herr := os.Hostname(); herr == nil {
		attrs = append(attrs, trace.String("host.name", hostname))
	}

	pid := int32(os.Getpid())
	attrs = append(attrs, trace.Int64("process.pid", int64(pid)))
	if proc, err := process.NewProcess(pid); err == nil {
		if exe, err := proc.Exe(); err == nil {
			attrs = append(attrs, trace.String("process.executable.name", filepath.Base(exe)))
		}
	}
	attrs = append(attrs, trace.String("process.runtime.name", runtime.Version()))

	return trace.Resource{Attributes: attrs}
}
