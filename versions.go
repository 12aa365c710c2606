package main

import (
	"fmt"

	"github.com/brave-experiments/nacrelay/gestalt"
	"github.com/brave-experiments/nacrelay/message"
	"golang.org/x/sys/unix"
)

// deviceVersions describes the device that we're running on, using uname for
// the hardware model and the given answerer for everything else.
func deviceVersions(a gestalt.Answerer) (*message.Versions, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return nil, fmt.Errorf("uname failed: %w", err)
	}

	v := &message.Versions{
		HardwareVersion: unix.ByteSliceToString(uts.Machine[:]),
		SoftwareName:    message.SoftwareName,
	}
	for property, field := range map[string]*string{
		gestalt.ProductVersion: &v.SoftwareVersion,
		gestalt.BuildVersion:   &v.SoftwareBuildID,
		gestalt.UniqueDeviceID: &v.UniqueDeviceID,
		gestalt.SerialNumber:   &v.SerialNumber,
	} {
		answer, err := gestalt.CopyAnswer(a, property)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s: %w", property, err)
		}
		*field = answer
	}
	return v, nil
}
