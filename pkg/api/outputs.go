package api

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

// outputGroups maps file extensions to the listing they appear under.
var outputGroups = map[string]string{
	".png":  "images",
	".jpg":  "images",
	".jpeg": "images",
	".webp": "images",
	".mp4":  "videos",
	".avi":  "videos",
	".mov":  "videos",
	".mp3":  "audio",
	".wav":  "audio",
}

type outputFile struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

type outputsResponse struct {
	Images []outputFile `json:"images"`
	Videos []outputFile `json:"videos"`
	Audio  []outputFile `json:"audio"`
}

// handleListOutputs lists generated files newest first, grouped by media type.
func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	resp := outputsResponse{Images: []outputFile{}, Videos: []outputFile{}, Audio: []outputFile{}}
	entries, err := os.ReadDir(s.files)
	if err != nil && !os.IsNotExist(err) {
		writeJSONError(w, http.StatusInternalServerError, "failed to list outputs")
		return
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		f := outputFile{
			Name:     e.Name(),
			URL:      fileURL(e.Name()),
			Size:     info.Size(),
			Modified: info.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
		}
		switch outputGroups[strings.ToLower(filepath.Ext(e.Name()))] {
		case "images":
			resp.Images = append(resp.Images, f)
		case "videos":
			resp.Videos = append(resp.Videos, f)
		case "audio":
			resp.Audio = append(resp.Audio, f)
		}
	}
	for _, list := range [][]outputFile{resp.Images, resp.Videos, resp.Audio} {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Modified != list[j].Modified {
				return list[i].Modified > list[j].Modified
			}
			return list[i].Name < list[j].Name
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteOutput(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, ok := s.localFile(w, name)
	if !ok {
		return
	}
	if err := os.Remove(path); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to delete file")
		return
	}
	s.logger.Info("output deleted", "file", name)
	writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}
