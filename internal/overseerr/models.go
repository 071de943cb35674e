package overseerr

// Wire-level request status codes returned by the server.
const (
	WireStatusPending   = 1
	WireStatusApproved  = 2
	WireStatusDeclined  = 3
	WireStatusAvailable = 4
)

// RequestBody is the submission payload for POST /api/v1/request.
type RequestBody struct {
	MediaID    int64   `json:"media_id"`
	MediaType  string  `json:"media_type"`
	Seasons    []int64 `json:"seasons,omitempty"`
	Is4K       bool    `json:"is4k"`
	ServerID   *int64  `json:"serverId,omitempty"`
	ProfileID  *int64  `json:"profileId,omitempty"`
	RootFolder *string `json:"rootFolder,omitempty"`
}

// MediaRequest is a server-side request record as returned by the API.
type MediaRequest struct {
	ID         int64   `json:"id"`
	MediaType  string  `json:"media_type"`
	MediaID    int64   `json:"media_id"`
	Title      string  `json:"title"`
	PosterPath *string `json:"poster_path,omitempty"`
	Status     int     `json:"status"`
	CreatedAt  string  `json:"created_at"`
	Seasons    []int64 `json:"seasons,omitempty"`
}

// RequestList is the paginated response of GET /api/v1/request.
type RequestList struct {
	PageInfo struct {
		Pages   int `json:"pages"`
		Results int `json:"results"`
	} `json:"pageInfo"`
	Results []MediaRequest `json:"results"`
}

// QualityProfile is a quality profile offered for advanced submissions.
type QualityProfile struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RootFolder is a storage root folder offered for advanced submissions.
type RootFolder struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
}

// errorResponse is the server's error body shape.
type errorResponse struct {
	Message string `json:"message"`
}
