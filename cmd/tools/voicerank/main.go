// Command voicerank prints how the voice catalog ranks a platform voice list
// and which voice a session would pick for a locale.
//
// Dump the list in a browser console with
//
//	JSON.stringify(speechSynthesis.getVoices().map(v => ({name: v.name, lang: v.lang, voiceURI: v.voiceURI, default: v.default, localService: v.localService})))
//
// and feed it on stdin or through -in.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/lunajournal/luna/backend/internal/logging"
	speechmodel "github.com/lunajournal/luna/backend/internal/model/speech"
	"github.com/lunajournal/luna/backend/internal/service/speech"
)

func main() {
	locale := flag.String("locale", "en-IN", "user locale used for the default pick")
	in := flag.String("in", "", "JSON file with the platform voices (default stdin)")
	flag.Parse()

	logger := logging.New(os.Stderr, "info", logging.FormatConsole)

	voices, err := readVoices(*in)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read voices")
	}

	catalog := speech.NewCatalog(speech.DefaultRegionRules)
	options := catalog.Build(voices)
	if len(options) == 0 {
		logger.Fatal().Int("voices", len(voices)).Msg("no eligible voices")
	}

	if err := printRanking(os.Stdout, options); err != nil {
		logger.Fatal().Err(err).Msg("failed to write ranking")
	}

	pick, ok := catalog.Pick(options, *locale)
	if !ok {
		logger.Fatal().Str("locale", *locale).Msg("no default voice")
	}
	fmt.Printf("\ndefault for %s: %s (%s, %s)\n", *locale, pick.Name, pick.Lang, pick.VoiceURI)
}

func readVoices(path string) ([]speechmodel.PlatformVoice, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var voices []speechmodel.PlatformVoice
	if err := json.NewDecoder(r).Decode(&voices); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}
	return voices, nil
}

func printRanking(w io.Writer, options []speechmodel.VoiceOption) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPRIORITY\tREGION\tNAME\tLANG\tLOCAL\tDEFAULT")
	for i, o := range options {
		region := o.Region
		if region == "" {
			region = "-"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%t\t%t\n", i+1, o.Priority, region, o.Name, o.Lang, o.LocalService, o.Default)
	}
	return tw.Flush()
}
