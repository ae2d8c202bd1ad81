package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amaumene/streamarr/internal/models"
	"github.com/amaumene/streamarr/internal/scraper"
)

var scrapeFlags struct {
	kind      string
	title     string
	showTitle string
	year      int
	ids       models.IDs
	season    int
	episode   int
	pack      bool
	preset    string
	exact     bool
	binge     bool
	cache     bool
	excluded  bool
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape and print the streams as JSON",
	Example: `  streamarr scrape --kind movie --title "Heat" --year 1995 --imdb tt0113277
  streamarr scrape --kind episode --show-title "Fargo" --imdb tt2802850 --season 1 --episode 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, cleanup, err := loadServices()
		if err != nil {
			return err
		}
		defer cleanup()

		f := scrapeFlags
		req := scraper.Request{
			Kind:      models.Kind(f.kind),
			Title:     f.title,
			ShowTitle: f.showTitle,
			Year:      f.year,
			IDs:       f.ids,
			Pack:      f.pack,
			Preset:    f.preset,
			Exact:     f.exact,
			Binge:     f.binge,
			Cache:     f.cache,
			Process:   true,
		}
		if cmd.Flags().Changed("season") {
			req.Season = &f.season
		}
		if cmd.Flags().Changed("episode") {
			req.Episode = &f.episode
		}

		ctx, stop := signalContext()
		defer stop()
		session := services.Scraper.Start(ctx, req, scraper.HandlerFunc(func(p scraper.Progress) {
			fmt.Fprintf(os.Stderr, "\r%-10s %3.0f%%  providers %d/%d  streams %d  cached %d ",
				p.Phase, p.Percent, p.Finished, p.Providers, p.Streams, p.Cached)
		}))
		go func() {
			<-ctx.Done()
			session.Cancel()
		}()

		result, err := session.Wait()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}

		out := map[string]any{
			"state":    result.State,
			"reason":   result.Reason,
			"streams":  result.Streams,
			"cached":   result.Cached,
			"failures": result.Failures,
		}
		if f.excluded {
			out["excluded"] = result.Excluded
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	},
}

func init() {
	flags := scrapeCmd.Flags()
	flags.StringVar(&scrapeFlags.kind, "kind", string(models.KindMovie), "movie, set, show, season, episode or pack")
	flags.StringVar(&scrapeFlags.title, "title", "", "Title searched for")
	flags.StringVar(&scrapeFlags.showTitle, "show-title", "", "Show title searched for episodes, seasons and packs")
	flags.IntVar(&scrapeFlags.year, "year", 0, "Release year")
	flags.StringVar(&scrapeFlags.ids.IMDb, "imdb", "", "IMDb id")
	flags.StringVar(&scrapeFlags.ids.TMDb, "tmdb", "", "TMDb id")
	flags.StringVar(&scrapeFlags.ids.TVDb, "tvdb", "", "TVDb id")
	flags.StringVar(&scrapeFlags.ids.Trakt, "trakt", "", "Trakt id")
	flags.IntVar(&scrapeFlags.season, "season", 0, "Season number")
	flags.IntVar(&scrapeFlags.episode, "episode", 0, "Episode number")
	flags.BoolVar(&scrapeFlags.pack, "pack", false, "Include season and show packs")
	flags.StringVar(&scrapeFlags.preset, "preset", "", "Optimization profile overriding the configured one")
	flags.BoolVar(&scrapeFlags.exact, "exact", false, "Search the given title only")
	flags.BoolVar(&scrapeFlags.binge, "binge", false, "Favour speed, as for autoplay of the next episode")
	flags.BoolVar(&scrapeFlags.cache, "cache", false, "Reuse fresh results from the providers-cache")
	flags.BoolVar(&scrapeFlags.excluded, "excluded", false, "Also print the excluded streams")
}
