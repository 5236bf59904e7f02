package main

import (
	"github.com/spf13/pflag"

	"github.com/sweeney/pfir-bridge/internal/command"
	"github.com/sweeney/pfir-bridge/internal/pfir"
)

// commandFlags are the flags describing a single command for send and frame.
type commandFlags struct {
	channel int
	port    string
	value   int
	power   int
	mode    string
}

func (c *commandFlags) register(fs *pflag.FlagSet) {
	fs.IntVarP(&c.channel, "channel", "c", 1, "Channel (1-4)")
	fs.StringVarP(&c.port, "port", "o", "A", "Output port (A or B)")
	fs.IntVarP(&c.value, "value", "v", pfir.ValueFloat, "Protocol value (0 float, 1-7 forward, 8 brake, 9-15 reverse)")
	fs.IntVar(&c.power, "power", 0, "Signed power -128..127 (-128 floats); overrides --value")
	fs.StringVarP(&c.mode, "mode", "m", "combo", "Mode (combo or single)")
}

// command builds a validated command. --power wins over --value when set.
func (c *commandFlags) command(fs *pflag.FlagSet) (pfir.Command, error) {
	jc := command.JSONCommand{
		Channel: c.channel,
		Port:    c.port,
		Mode:    c.mode,
	}
	if fs.Changed("power") {
		jc.Power = &c.power
	} else {
		jc.Value = &c.value
	}
	return jc.Command()
}
