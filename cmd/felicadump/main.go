// SPDX-FileCopyrightText: 2025 The go-felica contributors
// SPDX-License-Identifier: Apache-2.0

// felicadump reads one Suica-family card through a PC/SC reader and a remote
// authentication relay, and writes the decoded snapshot as JSON to stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	felica "github.com/suicakit/go-felica"
	"github.com/suicakit/go-felica/internal/logging"
	"github.com/suicakit/go-felica/record"
	"github.com/suicakit/go-felica/relay"
	"github.com/suicakit/go-felica/stations"
	"github.com/suicakit/go-felica/transport/pcsc"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	viper.SetDefault("server.url", "https://felica-auth.nyaa.ws")
	viper.SetDefault("server.timeout", "10s")
	viper.SetDefault("reader.name", "")
	viper.SetDefault("stations.csv", "")
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "felicadump",
		Short: "Dump a Suica-family FeliCa card as JSON.",
		Long: `felicadump authenticates a transit IC card against a remote relay
server, reads its encrypted services and prints the decoded snapshot as a
JSON document. Station names are annotated when a station code dataset is
configured.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./felicadump.yaml)")
	cmd.PersistentFlags().String("server", "", "relay server base URL")
	cmd.PersistentFlags().String("reader", "", "PC/SC reader name (default: first available)")
	cmd.PersistentFlags().String("stations", "", "station code CSV for name annotation")
	cmd.PersistentFlags().Duration("timeout", 0, "relay HTTP timeout")
	cmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	_ = viper.BindPFlag("server.url", cmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("reader.name", cmd.PersistentFlags().Lookup("reader"))
	_ = viper.BindPFlag("stations.csv", cmd.PersistentFlags().Lookup("stations"))
	_ = viper.BindPFlag("server.timeout", cmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(newReadersCmd())

	return cmd
}

func newReadersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "readers",
		Short: "List available PC/SC readers.",
		RunE: func(_ *cobra.Command, _ []string) error {
			readers, err := pcsc.Readers()
			if err != nil {
				return err
			}
			if len(readers) == 0 {
				fmt.Println("no readers found")
				return nil
			}
			for _, r := range readers {
				fmt.Println(r)
			}
			return nil
		},
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("felicadump")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
	}

	viper.SetEnvPrefix("FELICA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			logging.Errorf("failed to read config: %v", err)
		}
	}
}

// output is the JSON document printed to stdout: the snapshot plus resolved
// station names keyed by "line-station" hex codes.
type output struct {
	*felica.Snapshot
	StationNames map[string]string `json:"station_names,omitempty"`
}

func run(ctx context.Context) error {
	if viper.GetBool("verbose") {
		logging.SetLevel(clog.DebugLevel)
	}

	rc, err := relay.NewClient(viper.GetString("server.url"),
		relay.WithTimeout(viper.GetDuration("server.timeout")))
	if err != nil {
		return err
	}

	tr, err := pcsc.Open(viper.GetString("reader.name"))
	if err != nil {
		return err
	}
	defer tr.Close()

	session := felica.NewSession(tr, rc,
		felica.WithExchangeTimeout(time.Second))
	defer session.Close()

	snap, err := felica.NewReader(session).Collect(ctx)
	if err != nil && snap == nil {
		return adviseOn(err)
	}

	doc := output{Snapshot: snap}
	if path := viper.GetString("stations.csv"); path != "" {
		lookup, lerr := stations.LoadFile(path)
		if lerr != nil {
			logging.Warnf("station dataset unavailable: %v", lerr)
		} else {
			doc.StationNames = resolveNames(snap, lookup)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if jerr := enc.Encode(doc); jerr != nil {
		return jerr
	}

	if err != nil {
		return adviseOn(err)
	}
	return nil
}

func resolveNames(snap *felica.Snapshot, lookup *stations.Lookup) map[string]string {
	names := map[string]string{}
	for _, ref := range snap.StationRefs() {
		if ref == (record.StationRef{}) {
			continue
		}
		key := fmt.Sprintf("%02X-%02X", ref.Line, ref.Station)
		if _, seen := names[key]; seen {
			continue
		}
		if st, ok := lookup.Resolve(ref.Line, ref.Station); ok {
			names[key] = fmt.Sprintf("%s %s %s", st.Company, st.Line, st.Name)
		}
	}
	return names
}

// adviseOn keeps the raw error but tells the user which knob to turn.
func adviseOn(err error) error {
	switch felica.ReasonOf(err).Class() {
	case felica.ClassNetwork:
		logging.Errorf("relay server unreachable; check --server and your network")
	case felica.ClassCard:
		logging.Errorf("card session failed; re-present the card and try again")
	case felica.ClassUnsupported:
		logging.Errorf("this card family is not supported")
	}
	return err
}
