package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// opt is a single command-line option that can also be set from the
// environment.
type opt struct {
	destP any // pointer to the destination
	flag  string
	dflt  any
	desc  string
}

func newOpt(destP any, flag string, dflt any, desc string) opt {
	return opt{destP: destP, flag: flag, dflt: dflt, desc: desc}
}

// newViper returns a viper instance that reads <PREFIX>_<FLAG> environment
// variables, with "-" in flag names normalized to "_".
func newViper(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(prefix))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	return v
}

// bindOptions registers opts as persistent flags on cmd and seeds each
// destination from the environment. Flags given on the command line are
// parsed later and win.
func bindOptions(v *viper.Viper, cmd *cobra.Command, opts []opt) {
	flags := cmd.PersistentFlags()

	for _, o := range opts {
		switch destP := o.destP.(type) {
		case *string:
			var d string
			if o.dflt != nil {
				d = o.dflt.(string)
			}
			flags.StringVar(destP, o.flag, d, o.desc)
			mustBindPFlag(v, o.flag, cmd)
			*destP = v.GetString(o.flag)
		case *bool:
			var d bool
			if o.dflt != nil {
				d = o.dflt.(bool)
			}
			flags.BoolVar(destP, o.flag, d, o.desc)
			mustBindPFlag(v, o.flag, cmd)
			*destP = v.GetBool(o.flag)
		case *time.Duration:
			var d time.Duration
			if o.dflt != nil {
				d = o.dflt.(time.Duration)
			}
			flags.DurationVar(destP, o.flag, d, o.desc)
			mustBindPFlag(v, o.flag, cmd)
			*destP = v.GetDuration(o.flag)
		default:
			panic(fmt.Errorf("unknown destination type %T", o.destP))
		}
	}
}

func mustBindPFlag(v *viper.Viper, key string, cmd *cobra.Command) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(key)); err != nil {
		panic(err)
	}
}
