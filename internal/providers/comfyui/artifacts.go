// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package comfyui

import (
	"path"
	"strings"
)

// Artifact is the downloaded output of a finished job.
type Artifact struct {
	Filename string
	MimeType string
	Data     []byte
	// Motion is true when the file came from an animated or video output.
	Motion bool
}

// selectArtifact picks the file to return from a job's outputs. Animated and video
// outputs win over still images; among equals the lowest node id wins.
func selectArtifact(outputs map[string]nodeOutput) (fileRef, bool, bool) {
	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	sortNodeIDs(ids)

	for _, id := range ids {
		out := outputs[id]
		if len(out.Gifs) > 0 {
			return out.Gifs[0], true, true
		}
		if len(out.Videos) > 0 {
			return out.Videos[0], true, true
		}
	}
	for _, id := range ids {
		if imgs := outputs[id].Images; len(imgs) > 0 {
			return imgs[0], false, true
		}
	}
	return fileRef{}, false, false
}

var mimeByExt = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".webp": "image/webp",
	".gif":  "image/gif",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// MimeType maps an output filename to its media type.
func MimeType(filename string) string {
	if m, ok := mimeByExt[strings.ToLower(path.Ext(filename))]; ok {
		return m
	}
	return "application/octet-stream"
}
