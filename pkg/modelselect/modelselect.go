// Package modelselect maps node content types to the embedding models and
// content parts that should represent them.
//
// The mapping is a static table: text-heavy types embed their full content
// and title with the text encoder, image-bearing types add a vision encoder
// for the visual part, audio/video types add an audio encoder, and
// structural hub types (person, event, project, location, organization)
// embed only their title.
package modelselect

import (
	"sort"

	"github.com/braingraph/braingraph-go/pkg/storage"
)

// Registered model names.
const (
	ModelTextJina  = "jina-embeddings-v2"
	ModelVisionSig = "siglip-base"
	ModelAudioClap = "clap-htsat"
)

// Source parts used by recommendations.
const (
	PartFull    = "full"
	PartTitle   = "title"
	PartSummary = "summary"
	PartVisual  = "visual"
	PartAudio   = "audio"
)

// Recommendation is one (model, source part, priority) triple. Priority 1 is
// the primary representation.
type Recommendation struct {
	ModelName  string
	SourcePart string
	Priority   int
}

// Models returns the embedding model registry: every model a recommendation
// can name, with its modality and fixed dimension.
func Models() []storage.EmbeddingModel {
	return []storage.EmbeddingModel{
		{Name: ModelTextJina, Modality: storage.ModalityText, Dimension: 768, Active: true},
		{Name: ModelVisionSig, Modality: storage.ModalityVision, Dimension: 768, Active: true},
		{Name: ModelAudioClap, Modality: storage.ModalityAudio, Dimension: 512, Active: true},
	}
}

var (
	// textHeavy embeds full content first, then title.
	textHeavy = []Recommendation{
		{ModelTextJina, PartFull, 1},
		{ModelTextJina, PartTitle, 2},
	}

	// visual embeds the image first, then the title as a text anchor.
	visual = []Recommendation{
		{ModelVisionSig, PartVisual, 1},
		{ModelTextJina, PartTitle, 2},
	}

	// audioVisual covers media with a soundtrack.
	audioVisual = []Recommendation{
		{ModelVisionSig, PartVisual, 1},
		{ModelAudioClap, PartAudio, 2},
		{ModelTextJina, PartTitle, 3},
	}

	// audioOnly is for pure audio content.
	audioOnly = []Recommendation{
		{ModelAudioClap, PartAudio, 1},
		{ModelTextJina, PartTitle, 2},
	}

	// hub types carry little body text; only the title is embedded.
	titleOnly = []Recommendation{
		{ModelTextJina, PartTitle, 1},
	}

	// synthesis nodes are summaries of other nodes; the summary part leads.
	synthesis = []Recommendation{
		{ModelTextJina, PartSummary, 1},
		{ModelTextJina, PartTitle, 2},
	}
)

var byType = map[storage.NodeType][]Recommendation{
	storage.NodeDocument:     textHeavy,
	storage.NodeNote:         textHeavy,
	storage.NodeArticle:      textHeavy,
	storage.NodeWebpage:      textHeavy,
	storage.NodeBook:         textHeavy,
	storage.NodeEmail:        textHeavy,
	storage.NodeConversation: textHeavy,
	storage.NodeCode:         textHeavy,
	storage.NodeImage:        visual,
	storage.NodePhoto:        visual,
	storage.NodeScreenshot:   visual,
	storage.NodeVideo:        audioVisual,
	storage.NodeAudio:        audioOnly,
	storage.NodePerson:       titleOnly,
	storage.NodeEvent:        titleOnly,
	storage.NodeProject:      titleOnly,
	storage.NodeLocation:     titleOnly,
	storage.NodeOrganization: titleOnly,
	storage.NodeTask:         titleOnly,
	storage.NodeSynthesis:    synthesis,
}

// ModelsFor returns the recommended (model, source part, priority) triples
// for a node type, ordered ascending by priority. An unrecognized type yields
// an empty list, not an error: unknown types simply get no recommendations.
func ModelsFor(t storage.NodeType) []Recommendation {
	recs, ok := byType[t]
	if !ok {
		return nil
	}

	out := make([]Recommendation, len(recs))
	copy(out, recs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
