// Package oaipoll harvests OAI repositories incrementally. The Open Archives
// Initiative Protocol for Metadata Harvesting (OAI-PMH) is a low-barrier
// mechanism for repository interoperability.
//
// A Poller owns the harvesting cursor of one endpoint. Each call to Poll runs
// a harvest cycle: it checks the from/until window, follows resumption
// tokens page by page and hands every record to a Sink. The cursor moves to
// the time of the request, so the next cycle only asks for what changed.
//
// Basic usage:
//
//	client := oaipoll.NewClient(oaipoll.DefaultClientConfig(), log)
//	p, err := oaipoll.NewPoller("http://export.arxiv.org/oai2",
//		oaipoll.Cursor{Verb: oaipoll.ListRecords, Prefix: "oai_dc", From: "2020-01-01"},
//		client, sink.NewWriter(os.Stdout))
//	...
//	result, err := p.Poll(ctx)
//
// The command line tool `oaipoll` runs pollers on a schedule.
package oaipoll
