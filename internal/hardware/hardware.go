package hardware

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Info describes the compute environment the service runs on. It is probed
// once during startup and injected into components that need it.
type Info struct {
	Device   string `json:"device"`
	CPUModel string `json:"cpu_model"`
	Cores    int    `json:"cores"`
	MemoryMB uint64 `json:"memory_mb"`
	Hostname string `json:"hostname"`
}

// Detect probes the local machine. Probe failures degrade to partial info
// rather than failing startup.
func Detect(ctx context.Context) Info {
	info := Info{
		Device: detectDevice(),
		Cores:  runtime.NumCPU(),
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryMB = vm.Total / (1024 * 1024)
	}
	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hi.Hostname
	}

	return info
}

func detectDevice() string {
	if dev := os.Getenv("AURA_DEVICE"); dev != "" {
		return dev
	}
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return "gpu"
	}
	return "cpu"
}
