package oaipoll

import (
	"context"
	"sync"
	"time"
)

// Info summarizes a repository.
type Info struct {
	Identify IdentifyXML         `json:"id"`
	Sets     []string            `json:"sets,omitempty"`
	Formats  []MetadataFormatXML `json:"formats,omitempty"`
	Errors   []string            `json:"errors,omitempty"`
	Elapsed  float64             `json:"elapsed"`
}

// Granularity returns the datestamp granularity the repository supports.
func (i Info) Granularity() Granularity {
	if Granularity(i.Identify.Granularity) == DayGranularity {
		return DayGranularity
	}
	return SecondsGranularity
}

// RepositoryInfo issues Identify, ListSets and ListMetadataFormats in
// parallel. Failed requests are listed in Errors, the returned error is only
// set, if the context ended first.
func RepositoryInfo(ctx context.Context, f Fetcher, endpoint string) (Info, error) {
	var (
		info  Info
		mu    sync.Mutex
		wg    sync.WaitGroup
		start = time.Now()
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		info.Errors = append(info.Errors, err.Error())
	}
	single := func(verb Verb) (Response, bool) {
		b, err := f.Fetch(ctx, Request{Endpoint: endpoint, Verb: verb})
		if err != nil {
			fail(err)
			return Response{}, false
		}
		resp, err := Decode(b)
		if err != nil {
			fail(err)
			return resp, false
		}
		for _, e := range resp.Errors {
			fail(e)
		}
		return resp, len(resp.Errors) == 0
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		if resp, ok := single(Identify); ok {
			mu.Lock()
			info.Identify = resp.Identify
			mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		if resp, ok := single(ListMetadataFormats); ok {
			mu.Lock()
			info.Formats = resp.ListMetadataFormats.Formats
			mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		var sets []string
		collect := SinkFunc(func(_ context.Context, r Record) error {
			sets = append(sets, r.Identifier)
			return nil
		})
		p, err := NewPoller(endpoint, Cursor{Verb: ListSets}, f, collect)
		if err != nil {
			fail(err)
			return
		}
		result, err := p.Poll(ctx)
		if err != nil {
			fail(err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if result.Status == StatusFailed {
			info.Errors = append(info.Errors, "ListSets: "+result.Status.String())
		}
		info.Sets = sets
	}()

	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		if err := ctx.Err(); err != nil {
			return info, err
		}
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		return info, ctx.Err()
	}
	info.Elapsed = time.Since(start).Seconds()
	return info, nil
}
