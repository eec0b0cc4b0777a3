// Command invalidate publishes a manual cache invalidation event.
//
//	invalidate -keys pops,eventos_abertos
//	invalidate -resource eventos -from 2022-06-01 -to 2022-06-30
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prefeitura-rio/api-dados-rio/internal/core/config"
	"github.com/prefeitura-rio/api-dados-rio/internal/invalidation"
	"github.com/prefeitura-rio/api-dados-rio/pkg/invalidation/kafka"
)

func main() {
	os.Exit(run())
}

func run() int {
	keysFlag := flag.String("keys", "", "comma-separated cache keys to delete")
	resource := flag.String("resource", "", "date-bucketed resource, e.g. eventos")
	from := flag.String("from", "", "first day (YYYY-MM-DD) with -resource")
	to := flag.String("to", "", "last day (YYYY-MM-DD) with -resource")
	version := flag.Uint64("version", 0, "event version; defaults to the current unix time in ms")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	now := time.Now().UTC()
	ev := invalidation.Event{Version: *version, TS: now, Source: "cli"}
	if ev.Version == 0 {
		ev.Version = uint64(now.UnixMilli())
	}
	switch {
	case *resource != "":
		ev.Op = invalidation.OpDeleteDays
		ev.Resource, ev.From, ev.To = *resource, *from, *to
		if ev.To == "" {
			ev.To = ev.From
		}
	default:
		ev.Op = invalidation.OpDelete
		for _, k := range strings.Split(*keysFlag, ",") {
			if k = strings.TrimSpace(k); k != "" {
				ev.Keys = append(ev.Keys, k)
			}
		}
	}
	if err := ev.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid event:", err)
		flag.Usage()
		return 2
	}

	pub, err := kafka.NewPublisher(cfg.Invalidation.BrokerList(), cfg.Invalidation.Topic)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = pub.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	part, off, err := pub.Publish(ctx, ev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("published %s version=%d keys=%d partition=%d offset=%d\n",
		ev.Op, ev.Version, len(ev.CacheKeys()), part, off)
	return 0
}
