package device

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// ListDevices prints information about all available audio devices.
// For each device, it shows:
// - Device ID and name
// - Device type (Input/Output/Input+Output)
// - Channel count
// - Default sample rate
// - Output latency ranges
func ListDevices() error {
	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}

	fmt.Printf("\nAvailable Audio Devices\n\n")

	for i, device := range devices {
		inputChannels := device.MaxInputChannels
		outputChannels := device.MaxOutputChannels

		deviceType := ""
		if inputChannels > 0 && outputChannels > 0 {
			deviceType = "Input/Output"
		} else if inputChannels > 0 {
			deviceType = "Input"
		} else if outputChannels > 0 {
			deviceType = "Output"
		}

		fmt.Printf("[%d] %s (%s)\n", i, device.Name, deviceType)
		fmt.Printf("    Input channels: %d, Output channels: %d\n", inputChannels, outputChannels)
		fmt.Printf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Printf("    Output latency: Low=%.2fms, High=%.2fms\n",
			device.DefaultLowOutputLatency.Seconds()*1000,
			device.DefaultHighOutputLatency.Seconds()*1000)
		fmt.Println()
	}

	return nil
}
