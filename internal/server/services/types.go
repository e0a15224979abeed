package services

// File is the contents metadata of one path.
type File struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	Encoding    string `json:"encoding"`
	Content     string `json:"content"`
	DownloadURL string `json:"download_url"`

	// Commit is the commit the file was read at. The API layer uses it to
	// build DownloadURL.
	Commit string `json:"-"`
}

type PutContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

type PutContentsResult struct {
	Content FileRef    `json:"content"`
	Commit  CommitInfo `json:"commit"`

	Created bool `json:"-"`
}

type FileRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

type SHARef struct {
	SHA string `json:"sha"`
}

type Signature struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

type CommitInfo struct {
	SHA       string    `json:"sha"`
	Tree      SHARef    `json:"tree"`
	Parents   []SHARef  `json:"parents"`
	Message   string    `json:"message"`
	Author    Signature `json:"author"`
	Committer Signature `json:"committer"`
}

type CreateCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

type Blob struct {
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type CreateBlobRequest struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type TreeEntryRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type CreateTreeRequest struct {
	BaseTree string             `json:"base_tree"`
	Tree     []TreeEntryRequest `json:"tree"`
}

type TreeInfo struct {
	SHA  string             `json:"sha"`
	Tree []TreeEntryRequest `json:"tree"`
}

type Ref struct {
	Ref    string    `json:"ref"`
	Object RefObject `json:"object"`
}

type RefObject struct {
	SHA  string `json:"sha"`
	Type string `json:"type"`
}

type UpdateRefRequest struct {
	SHA   string `json:"sha"`
	Force bool   `json:"force"`
}
