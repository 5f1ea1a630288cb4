package search

import "github.com/hyperjump/archivist/internal/models"

// Input is what a user submits from the search bar or image picker.
type Input struct {
	Query         string
	Image         *models.ImageFile
	SearchFrames  bool
	SearchObjects bool
	// MaxResults defaults to the orchestrator's configured value when zero.
	MaxResults int
}

// ProcessInput builds a validated request from in, restricted to filter.
func ProcessInput(in Input, filter models.VideoSelection, defaultMax int) (*models.SearchRequest, error) {
	req := &models.SearchRequest{
		Query:         in.Query,
		Image:         in.Image,
		SearchFrames:  in.SearchFrames,
		SearchObjects: in.SearchObjects,
		MaxResults:    in.MaxResults,
		VideoNames:    filter.Names(),
	}
	if req.MaxResults == 0 {
		req.MaxResults = defaultMax
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
