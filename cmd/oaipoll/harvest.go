package main

import (
	"os"
	"time"

	"github.com/miku/oaipoll"
	"github.com/miku/oaipoll/sink"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var harvestFlags struct {
	verb        string
	set         string
	prefix      string
	identifier  string
	from        string
	until       string
	root        string
	split       string
	granularity string
	strict      bool
	retries     int
	redis       string
	timeout     time.Duration
}

var harvestCmd = &cobra.Command{
	Use:   "harvest ENDPOINT",
	Short: "Run a single harvest cycle and write records to stdout",
	Example: `  oaipoll harvest --from 2015-01-01 http://digitalcommons.unmc.edu/do/oai/ > metadata.xml
  oaipoll harvest --split monthly --from 2010-01-01 --until 2012-01-01 http://www.doabooks.org/oai`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger("info", false)
		if err != nil {
			return err
		}
		defer log.Sync()

		verb, err := oaipoll.ParseVerb(harvestFlags.verb)
		if err != nil {
			return err
		}
		cursor := oaipoll.Cursor{
			Verb:       verb,
			Set:        harvestFlags.set,
			Prefix:     harvestFlags.prefix,
			Identifier: harvestFlags.identifier,
			From:       harvestFlags.from,
			Until:      harvestFlags.until,
		}
		ccfg := oaipoll.DefaultClientConfig()
		ccfg.Timeout = harvestFlags.timeout
		client := oaipoll.NewClient(ccfg, log)

		w := sink.NewWriter(os.Stdout)
		w.RootTag = harvestFlags.root

		var out oaipoll.Sink = w
		if harvestFlags.redis != "" {
			rcfg := sink.RedisConfig{Address: harvestFlags.redis}
			client, err := sink.NewRedisClient(rcfg)
			if err != nil {
				return err
			}
			defer client.Close()
			out = sink.Multi{w, sink.NewRedis(client, rcfg)}
		}

		opts := []oaipoll.Option{oaipoll.WithLogger(log)}
		if harvestFlags.granularity == "day" {
			opts = append(opts, oaipoll.WithGranularity(oaipoll.DayGranularity))
		}
		if harvestFlags.strict {
			opts = append(opts, oaipoll.WithMorePages(oaipoll.NonEmptyContinues))
		}
		if harvestFlags.retries > 1 {
			b := oaipoll.DefaultBackoff()
			b.MaxAttempts = harvestFlags.retries
			opts = append(opts, oaipoll.WithRetryPolicy(b))
		}
		p, err := oaipoll.NewPoller(args[0], cursor, client, out, opts...)
		if err != nil {
			return err
		}

		var result oaipoll.Result
		switch harvestFlags.split {
		case "weekly":
			result, err = p.Backfill(cmd.Context(), oaipoll.Weekly)
		case "monthly":
			result, err = p.Backfill(cmd.Context(), oaipoll.Monthly)
		default:
			result, err = p.Poll(cmd.Context())
		}
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		log.Info("harvest finished",
			zap.Stringer("status", result.Status),
			zap.Int("records", result.Records),
			zap.Int("pages", result.Pages),
			zap.String("next_from", p.Cursor().From))
		return nil
	},
}

func init() {
	f := harvestCmd.Flags()
	f.StringVar(&harvestFlags.verb, "verb", string(oaipoll.ListRecords), "OAI verb")
	f.StringVar(&harvestFlags.set, "set", "", "OAI set")
	f.StringVar(&harvestFlags.prefix, "prefix", oaipoll.DefaultFormat, "OAI metadataPrefix")
	f.StringVar(&harvestFlags.identifier, "identifier", "", "record identifier for GetRecord")
	f.StringVar(&harvestFlags.from, "from", "", "OAI from")
	f.StringVar(&harvestFlags.until, "until", "", "OAI until")
	f.StringVar(&harvestFlags.root, "root", "", "name of artificial root element tag to use")
	f.StringVar(&harvestFlags.split, "split", "", "harvest in weekly or monthly windows")
	f.StringVar(&harvestFlags.granularity, "granularity", "seconds", "datestamp granularity, day or seconds")
	f.BoolVar(&harvestFlags.strict, "strict", false, "continue on any non-empty resumption token")
	f.IntVar(&harvestFlags.retries, "retries", 1, "attempts per page")
	f.StringVar(&harvestFlags.redis, "redis", "", "also append records to a redis stream at this address")
	f.DurationVar(&harvestFlags.timeout, "timeout", 5*time.Minute, "HTTP timeout")
}
