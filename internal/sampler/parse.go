package sampler

import (
	"fmt"
	"strconv"
	"strings"

	"heimdall/internal/sshclient"
)

// DiskUsage is one mounted filesystem reading.
type DiskUsage struct {
	Filesystem string
	Type       string
	Mount      string
	Percent    float64
}

var excludedFSTypes = map[string]struct{}{
	"tmpfs":    {},
	"devtmpfs": {},
	"squashfs": {},
}

// ParseCPU reads the busy percentage printed by the CPU pipeline.
// Params: command stdout.
// Returns: percentage or ErrEmptyOutput / ErrUnexpectedOutput.
func ParseCPU(output string) (float64, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return 0, ErrEmptyOutput
	}
	fields := strings.Fields(trimmed)
	value, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cpu %q", ErrUnexpectedOutput, trimmed)
	}
	return value, nil
}

// ParseMemory computes used*100/total from the Mem line of free(1).
// Params: command stdout.
// Returns: percentage or ErrEmptyOutput / ErrUnexpectedOutput.
func ParseMemory(output string) (float64, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return 0, ErrEmptyOutput
	}
	for _, line := range strings.Split(trimmed, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != "Mem:" {
			continue
		}
		total, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || total <= 0 {
			return 0, fmt.Errorf("%w: memory total %q", ErrUnexpectedOutput, fields[1])
		}
		used, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || used < 0 {
			return 0, fmt.Errorf("%w: memory used %q", ErrUnexpectedOutput, fields[2])
		}
		return used * 100 / total, nil
	}
	return 0, fmt.Errorf("%w: no Mem line", ErrUnexpectedOutput)
}

// ParseDisk reads POSIX df output, with or without the type column.
// Pseudo filesystems and snap mounts are dropped.
// Params: command stdout and whether the output carries a Type column (df -PT).
// Returns: remaining mounts or ErrEmptyOutput / ErrUnexpectedOutput.
func ParseDisk(output string, typed bool) ([]DiskUsage, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	minFields, capCol, mountCol := 6, 4, 5
	if typed {
		minFields, capCol, mountCol = 7, 5, 6
	}

	var (
		disks   []DiskUsage
		rows    int
		skipped int
	)
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] == "Filesystem" {
			continue
		}
		rows++
		if len(fields) < minFields {
			skipped++
			continue
		}
		disk := DiskUsage{
			Filesystem: fields[0],
			Mount:      strings.Join(fields[mountCol:], " "),
		}
		if typed {
			disk.Type = fields[1]
		}
		if excludedMount(disk) {
			continue
		}
		capacity := strings.TrimSuffix(fields[capCol], "%")
		value, err := strconv.ParseFloat(capacity, 64)
		if err != nil {
			skipped++
			continue
		}
		disk.Percent = value
		disks = append(disks, disk)
	}

	if rows == 0 {
		return nil, ErrEmptyOutput
	}
	if len(disks) == 0 && skipped > 0 {
		return nil, fmt.Errorf("%w: %d unparseable df rows", ErrUnexpectedOutput, skipped)
	}
	return disks, nil
}

// excludedMount reports pseudo or always-full read-only mounts.
func excludedMount(disk DiskUsage) bool {
	kind := disk.Type
	if kind == "" {
		kind = disk.Filesystem
	}
	if _, ok := excludedFSTypes[kind]; ok {
		return true
	}
	return disk.Mount == "/snap" || strings.HasPrefix(disk.Mount, "/snap/")
}

// ServiceProbe names one service status method in fallback order.
type ServiceProbe string

const (
	ProbeSystemctl     ServiceProbe = "systemctl"
	ProbeServiceScript ServiceProbe = "service"
	ProbeProcessList   ServiceProbe = "ps"
)

// serviceProbes is the fallback order.
var serviceProbes = []ServiceProbe{ProbeSystemctl, ProbeServiceScript, ProbeProcessList}

// Command returns the remote command for one service.
func (p ServiceProbe) Command(service string) string {
	quoted := sshclient.ShellQuote(service)
	switch p {
	case ProbeSystemctl:
		return "systemctl show -p LoadState " + quoted + "; systemctl is-active " + quoted
	case ProbeServiceScript:
		return "service " + quoted + " status"
	default:
		return "ps -eo args | grep -v grep | grep -w -- " + quoted
	}
}

// ServiceState is the parsed state of one service.
type ServiceState int

const (
	// ServiceUnknown means this probe cannot decide; try the next one.
	ServiceUnknown ServiceState = iota
	ServiceRunning
	ServiceStopped
)

// String returns the state label.
func (s ServiceState) String() string {
	switch s {
	case ServiceRunning:
		return "running"
	case ServiceStopped:
		return "not running"
	default:
		return "unknown"
	}
}

// ParseServiceState interprets one probe's exit status and output.
// Params: probe kind, exit code, and stdout.
// Returns: running, stopped, or unknown when the probe is unavailable.
func ParseServiceState(probe ServiceProbe, exitCode int, output string) ServiceState {
	if exitCode == 127 {
		return ServiceUnknown
	}
	out := strings.ToLower(strings.TrimSpace(output))
	switch probe {
	case ProbeSystemctl:
		loadState, activeState := splitSystemctl(out)
		switch activeState {
		case "active", "reloading":
			return ServiceRunning
		case "failed", "activating", "deactivating":
			return ServiceStopped
		case "inactive":
			// systemctl reports units it has never heard of as inactive.
			if loadState == "loaded" || loadState == "masked" {
				return ServiceStopped
			}
			return ServiceUnknown
		default:
			return ServiceUnknown
		}
	case ProbeServiceScript:
		switch exitCode {
		case 0:
			if strings.Contains(out, "not running") || strings.Contains(out, "stopped") {
				return ServiceStopped
			}
			return ServiceRunning
		case 3:
			return ServiceStopped
		default:
			return ServiceUnknown
		}
	case ProbeProcessList:
		switch exitCode {
		case 0:
			if out == "" {
				return ServiceStopped
			}
			return ServiceRunning
		case 1:
			return ServiceStopped
		default:
			return ServiceUnknown
		}
	default:
		return ServiceUnknown
	}
}

// splitSystemctl separates the LoadState property line from the is-active line.
func splitSystemctl(out string) (loadState, activeState string) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, "loadstate="); ok {
			loadState = value
			continue
		}
		if line != "" && activeState == "" {
			activeState = line
		}
	}
	return loadState, activeState
}
