package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPU(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr error
	}{
		{name: "plain", input: "92.4\n", want: 92.4},
		{name: "integer", input: "7", want: 7},
		{name: "comma decimal", input: "12,5", want: 12.5},
		{name: "empty", input: "  \n", wantErr: ErrEmptyOutput},
		{name: "garbage", input: "n/a", wantErr: ErrUnexpectedOutput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCPU(tc.input)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 0.001)
		})
	}
}

func TestParseMemory(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr error
	}{
		{
			name:  "procps",
			input: "Mem:        8000000     6000000      500000       10000     1500000     1800000\n",
			want:  75,
		},
		{
			name:  "no integer truncation",
			input: "Mem: 3 1 2 0 0 0",
			want:  100.0 / 3.0,
		},
		{
			name:  "header included",
			input: "              total        used        free\nMem:           1000         250         750\nSwap: 0 0 0\n",
			want:  25,
		},
		{name: "empty", input: "", wantErr: ErrEmptyOutput},
		{name: "zero total", input: "Mem: 0 0 0", wantErr: ErrUnexpectedOutput},
		{name: "no mem line", input: "Swap: 1 2 3", wantErr: ErrUnexpectedOutput},
		{name: "bad used", input: "Mem: 100 x 3", wantErr: ErrUnexpectedOutput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseMemory(tc.input)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 0.0001)
		})
	}
}

const dfTyped = `Filesystem     Type     1024-blocks     Used Available Capacity Mounted on
/dev/sda1      ext4        41152736 37037462   4115274      90% /
tmpfs          tmpfs         816000        0    816000       0% /run
devtmpfs       devtmpfs     4068000        0   4068000       0% /dev
/dev/loop0     squashfs       56960    56960         0     100% /snap/core18/2128
/dev/loop1     squashfs       56960    56960         0     100% /snap
/dev/sdb1      xfs        102400000 10240000  92160000      10% /mnt/data disk
/dev/sdc1      ext4         1000000   500000    500000      50% /snapshots
`

func TestParseDiskTyped(t *testing.T) {
	disks, err := ParseDisk(dfTyped, true)
	require.NoError(t, err)

	mounts := make([]string, 0, len(disks))
	for _, disk := range disks {
		mounts = append(mounts, disk.Mount)
	}
	assert.Equal(t, []string{"/", "/mnt/data disk", "/snapshots"}, mounts)
	assert.InDelta(t, 90, disks[0].Percent, 0.001)
	assert.Equal(t, "ext4", disks[0].Type)
	assert.Equal(t, "/dev/sda1", disks[0].Filesystem)
}

func TestParseDiskUntyped(t *testing.T) {
	input := `Filesystem     1024-blocks     Used Available Capacity Mounted on
/dev/sda1         41152736 37037462   4115274      90% /
tmpfs               816000        0    816000       0% /run
/dev/loop0           56960    56960         0     100% /snap/core18/2128
`
	disks, err := ParseDisk(input, false)
	require.NoError(t, err)
	require.Len(t, disks, 1)
	assert.Equal(t, "/", disks[0].Mount)
	assert.Empty(t, disks[0].Type)
}

func TestParseDiskErrors(t *testing.T) {
	_, err := ParseDisk("", true)
	assert.ErrorIs(t, err, ErrEmptyOutput)

	_, err = ParseDisk("Filesystem Type 1024-blocks Used Available Capacity Mounted on\n", true)
	assert.ErrorIs(t, err, ErrEmptyOutput)

	_, err = ParseDisk("/dev/sda1 ext4 1 1 0 full /\n", true)
	assert.ErrorIs(t, err, ErrUnexpectedOutput)

	disks, err := ParseDisk("tmpfs tmpfs 1 1 0 100% /run\n", true)
	require.NoError(t, err)
	assert.Empty(t, disks)
}

func TestParseServiceState(t *testing.T) {
	tests := []struct {
		name   string
		probe  ServiceProbe
		exit   int
		output string
		want   ServiceState
	}{
		{"systemctl active", ProbeSystemctl, 0, "active\n", ServiceRunning},
		{"systemctl inactive", ProbeSystemctl, 3, "LoadState=loaded\ninactive\n", ServiceStopped},
		{"systemctl masked", ProbeSystemctl, 3, "LoadState=masked\ninactive\n", ServiceStopped},
		{"systemctl unit not found", ProbeSystemctl, 3, "LoadState=not-found\ninactive\n", ServiceUnknown},
		{"systemctl inactive without load state", ProbeSystemctl, 3, "inactive\n", ServiceUnknown},
		{"systemctl failed", ProbeSystemctl, 3, "failed", ServiceStopped},
		{"systemctl missing", ProbeSystemctl, 127, "", ServiceUnknown},
		{"systemctl no systemd", ProbeSystemctl, 1, "System has not been booted with systemd", ServiceUnknown},
		{"service running", ProbeServiceScript, 0, " * nginx is running", ServiceRunning},
		{"service says stopped", ProbeServiceScript, 0, "nginx is not running", ServiceStopped},
		{"service exit 3", ProbeServiceScript, 3, "", ServiceStopped},
		{"service unrecognized", ProbeServiceScript, 1, "nginx: unrecognized service", ServiceUnknown},
		{"ps found", ProbeProcessList, 0, "nginx: master process", ServiceRunning},
		{"ps not found", ProbeProcessList, 1, "", ServiceStopped},
		{"ps broken", ProbeProcessList, 2, "", ServiceUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseServiceState(tc.probe, tc.exit, tc.output))
		})
	}
}

func TestServiceProbeCommand(t *testing.T) {
	assert.Equal(t, "systemctl show -p LoadState 'nginx'; systemctl is-active 'nginx'", ProbeSystemctl.Command("nginx"))
	assert.Equal(t, "service 'nginx' status", ProbeServiceScript.Command("nginx"))
	assert.Equal(t, "ps -eo args | grep -v grep | grep -w -- 'nginx'", ProbeProcessList.Command("nginx"))
}
