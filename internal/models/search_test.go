package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSearchRequest_Validate(t *testing.T) {
	img := &ImageFile{Filename: "a.png", ContentType: "image/png", Data: []byte{1, 2, 3}}
	tests := []struct {
		name    string
		req     *SearchRequest
		wantErr bool
	}{
		{"empty query", &SearchRequest{Query: "", MaxResults: 10}, true},
		{"whitespace query", &SearchRequest{Query: "   ", MaxResults: 10}, true},
		{"valid text", &SearchRequest{Query: "dog", MaxResults: 10, SearchFrames: true}, false},
		{"valid image", &SearchRequest{Image: img, MaxResults: 10, SearchObjects: true}, false},
		{"empty image", &SearchRequest{Image: &ImageFile{}, MaxResults: 10}, true},
		{"text and image", &SearchRequest{Query: "dog", Image: img, MaxResults: 10}, true},
		{"zero max results", &SearchRequest{Query: "dog", MaxResults: 0}, true},
		{"both result types off", &SearchRequest{Query: "dog", MaxResults: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("expected *ValidationError, got %T", err)
				}
				return
			}
		})
	}
}

func TestSearchRequest_ValidateKeepsFlags(t *testing.T) {
	req := &SearchRequest{Query: "dog", MaxResults: 5}
	if err := req.Validate(); err != nil {
		t.Fatal(err)
	}
	if req.SearchFrames || req.SearchObjects {
		t.Errorf("flags changed: frames=%v objects=%v", req.SearchFrames, req.SearchObjects)
	}
}

func TestSearchRequest_ValidateTrimsQuery(t *testing.T) {
	req := &SearchRequest{Query: "  red car  ", MaxResults: 3, SearchFrames: true}
	if err := req.Validate(); err != nil {
		t.Fatal(err)
	}
	if req.Query != "red car" {
		t.Errorf("query = %q, want trimmed", req.Query)
	}
}

func TestTextSearchBody_NullFilter(t *testing.T) {
	req := &SearchRequest{Query: "q", MaxResults: 20, SearchFrames: true}
	body := TextSearchBody{
		Query:         req.Query,
		SearchFrames:  req.SearchFrames,
		SearchObjects: req.SearchObjects,
		MaxResults:    req.MaxResults,
		VideoNames:    req.FilterNames(),
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	v, ok := raw["video_names"]
	if !ok || v != nil {
		t.Errorf("video_names = %v (present=%v), want null", v, ok)
	}
	if raw["max_results"].(float64) != 20 {
		t.Errorf("max_results = %v", raw["max_results"])
	}
}

func TestTruncateResults(t *testing.T) {
	results := make([]*SearchResult, 7)
	for i := range results {
		results[i] = &SearchResult{Similarity: 1 - float64(i)*0.1, URL: string(rune('a' + i))}
	}
	for _, limit := range []int{0, 1, 5, 7, 50} {
		got := TruncateResults(results, limit)
		want := limit
		if want > len(results) {
			want = len(results)
		}
		if len(got) != want {
			t.Errorf("limit %d: got %d items, want %d", limit, len(got), want)
		}
		for i := range got {
			if got[i] != results[i] {
				t.Errorf("limit %d: order changed at %d", limit, i)
			}
		}
	}
}

func TestClampDisplayLimit(t *testing.T) {
	tests := []struct{ in, want int }{{0, 5}, {5, 5}, {20, 20}, {50, 50}, {99, 50}}
	for _, tt := range tests {
		if got := ClampDisplayLimit(tt.in); got != tt.want {
			t.Errorf("ClampDisplayLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSearchResult_Title(t *testing.T) {
	r := &SearchResult{Metadata: ResultMetadata{VideoName: "clip"}}
	if r.Title() != "clip" {
		t.Errorf("got %q", r.Title())
	}
	r = &SearchResult{Path: "frames/clip_2/000123.jpg"}
	if r.Title() != "000123.jpg" {
		t.Errorf("got %q", r.Title())
	}
	if (&SearchResult{}).Title() != "Untitled" {
		t.Error("expected Untitled fallback")
	}
}

func TestSearchResponse_Decode(t *testing.T) {
	payload := `{"results":[{"result_type":"object","similarity":0.91,"url":"http://x/1.jpg",
		"metadata":{"video_name":"v1","timestamp":65.2,"frame_index":12,"object_index":0,
		"bbox":[10,20,30,40],"class_name":"dog","confidence":0.8,
		"objects":[{"class_name":"dog","confidence":0.8}]}}]}`
	var resp SearchResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results", len(resp.Results))
	}
	r := resp.Results[0]
	if r.ResultType != ResultObject || r.Metadata.FrameIndex == nil || *r.Metadata.FrameIndex != 12 {
		t.Errorf("unexpected result: %+v", r)
	}
	if len(r.Metadata.BBox) != 4 || r.Metadata.BBox[2] != 30 {
		t.Errorf("bbox = %v", r.Metadata.BBox)
	}
}
