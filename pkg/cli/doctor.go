package cli

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/droid-agent/pkg/config"
	"github.com/devicelab-dev/droid-agent/pkg/device"
)

var doctorCommand = &cli.Command{
	Name:  "doctor",
	Usage: "Check that adb is installed and a device is connected",
	Description: `Reports the adb binary in use, its version and the attached devices.
Exits 1 when adb is missing or no device is ready.`,
	Action: runDoctor,
}

// adbInspector is the part of device.ADB that doctor reports on.
type adbInspector interface {
	Path() string
	Version(ctx context.Context) (string, error)
	ListDevices(ctx context.Context) ([]device.DeviceEntry, error)
}

type doctorReport struct {
	ADB       string               `json:"adb,omitempty"`
	Version   string               `json:"adb_version,omitempty"`
	Connected bool                 `json:"connected"`
	Device    string               `json:"device,omitempty"`
	Devices   []device.DeviceEntry `json:"devices,omitempty"`
	Problems  []string             `json:"problems,omitempty"`
}

func runDoctor(c *cli.Context) error {
	var report doctorReport

	cfg, err := config.Resolve(c.String("config"))
	if err != nil {
		report.Problems = append(report.Problems, err.Error())
		return emit(c, report, exitFailure)
	}
	applyFlags(c, cfg)

	gw, err := newGateway(cfg)
	if err != nil {
		report.Problems = append(report.Problems, err.Error())
		return emit(c, report, exitFailure)
	}

	if adb, ok := gw.(adbInspector); ok {
		report.ADB = adb.Path()
		if v, err := adb.Version(c.Context); err == nil {
			report.Version = v
		} else {
			report.Problems = append(report.Problems, "Could not get ADB version: "+err.Error())
		}
		if devices, err := adb.ListDevices(c.Context); err == nil {
			report.Devices = devices
		}
	}

	id, err := gw.ConnectedDeviceID(c.Context)
	if err != nil {
		report.Problems = append(report.Problems, "No Android device connected or authorized")
	} else {
		report.Connected = true
		report.Device = id
	}

	code := exitOK
	if len(report.Problems) > 0 {
		code = exitFailure
	}
	return emit(c, report, code)
}
