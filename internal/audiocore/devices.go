package audiocore

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/audiorewind/rewind-go/internal/errors"
)

// captureSource holds information about a selected audio capture source.
type captureSource struct {
	Name    string
	ID      string
	Pointer unsafe.Pointer
}

// AudioDeviceInfo holds information about an audio capture device.
type AudioDeviceInfo struct {
	Index int
	Name  string
	ID    string
}

// ListCaptureSources returns the available audio capture devices.
func ListCaptureSources() ([]AudioDeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.Newf("failed to initialize audio context: %w", err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Build()
	}
	defer ctx.Uninit() //nolint:errcheck

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.Newf("failed to enumerate capture devices: %w", err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Build()
	}

	var devices []AudioDeviceInfo
	for i, info := range infos {
		decodedID, err := hexToASCII(info.ID.String())
		if err != nil {
			continue
		}

		devices = append(devices, AudioDeviceInfo{
			Index: i,
			Name:  info.Name(),
			ID:    decodedID,
		})
	}

	return devices, nil
}

// selectCaptureSource picks the capture device matching the configured source
// name or ID from the enumerated device list.
func selectCaptureSource(infos []malgo.DeviceInfo, source string) (captureSource, error) {
	for _, info := range infos {
		decodedID, err := hexToASCII(info.ID.String())
		if err != nil {
			continue
		}

		if matchesDeviceSettings(decodedID, info, source) {
			return captureSource{
				Name:    info.Name(),
				ID:      decodedID,
				Pointer: info.ID.Pointer(),
			}, nil
		}
	}

	return captureSource{}, errors.Newf("no suitable capture source found for device setting %s", source).
		Component("audiocore").
		Category(errors.CategoryNotFound).
		Context("source", source).
		Build()
}

// matchesDeviceSettings checks if the device matches the configured source.
func matchesDeviceSettings(decodedID string, info malgo.DeviceInfo, source string) bool {
	if runtime.GOOS == "windows" && source == "sysdefault" {
		// On Windows there is no "sysdefault" device, use miniaudio's default.
		return info.IsDefault == 1
	}
	return decodedID == source || strings.Contains(info.Name(), source)
}

// hexToASCII converts a hexadecimal string to an ASCII string.
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// FormatSourceList renders an enumerated device list for console display.
func FormatSourceList(devices []AudioDeviceInfo) string {
	var sb strings.Builder
	for _, d := range devices {
		if runtime.GOOS == "linux" {
			fmt.Fprintf(&sb, "  %d: %s, %s\n", d.Index, d.Name, d.ID)
		} else {
			fmt.Fprintf(&sb, "  %d: %s\n", d.Index, d.Name)
		}
	}
	return sb.String()
}
