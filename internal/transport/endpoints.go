package transport

import "strconv"

// API paths, relative to the base URL. The trailing slashes are significant
// to the server's router.
const (
	HistoryPath = "/history/"
	UploadPath  = "/upload/"
	// UploadField is the multipart field the upload endpoint reads.
	UploadField = "file"
)

// ReportPath returns the report download path for a dataset id.
func ReportPath(id int) string {
	return "/report/" + strconv.Itoa(id) + "/"
}
