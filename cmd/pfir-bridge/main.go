// Command pfir-bridge drives LEGO Power Functions receivers through an IR LED
// on a GPIO line. Commands arrive over MQTT, a serial link or HTTP.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
