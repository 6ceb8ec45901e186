package requests

import "github.com/hochfrequenz/nf-ci-console/internal/domain"

// Kind classifies a selector option
type Kind int

const (
	KindRequest     Kind = iota // a real review request
	KindPrompt                  // no component selected yet
	KindLoading                 // ingestion in flight or within the grace window
	KindNone                    // confirmed empty
	KindLoadMore                // expands the list
	KindPlaceholder             // disabled default shown after expansion
	KindFailed                  // the shortlist could not be read
)

// LoadMoreValue is the selector value of the expansion option
const LoadMoreValue = "LOAD_MORE"

// Sentinel texts
const (
	PromptText      = "-- select a component first --"
	LoadingText     = "loading..."
	NoneText        = "-- no open requests --"
	LoadMoreText    = "... (load more)"
	PlaceholderText = "-- select a request --"
	FailedText      = "update failed"
)

// Option is one entry of the review-request selector
type Option struct {
	Kind    Kind
	Request domain.ReviewRequest
	Text    string
}

// Value returns the selector value: the request number for real entries,
// LoadMoreValue for the expansion option and "" for every other sentinel.
func (o Option) Value() string {
	switch o.Kind {
	case KindRequest:
		return o.Request.Value()
	case KindLoadMore:
		return LoadMoreValue
	}
	return ""
}

// Sentinel reports whether the option stands in for a real request
func (o Option) Sentinel() bool {
	return o.Kind != KindRequest
}

// Disabled reports whether the option cannot be chosen
func (o Option) Disabled() bool {
	return o.Kind == KindPlaceholder
}

func requestOption(pr domain.ReviewRequest, titleLimit int) Option {
	return Option{Kind: KindRequest, Request: pr, Text: pr.Label(titleLimit)}
}

func sentinel(kind Kind) Option {
	var text string
	switch kind {
	case KindPrompt:
		text = PromptText
	case KindLoading:
		text = LoadingText
	case KindNone:
		text = NoneText
	case KindLoadMore:
		text = LoadMoreText
	case KindPlaceholder:
		text = PlaceholderText
	case KindFailed:
		text = FailedText
	}
	return Option{Kind: kind, Text: text}
}
