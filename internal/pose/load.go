package pose

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/normanking/signsynth/internal/rig"
)

// Format is the encoding of a pose document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
	FormatTOML
)

// FormatFromPath picks the format from the file extension, JSON by default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

var (
	errDuplicateKey = errors.New("duplicate key after lowercasing")
	errMissingHand  = errors.New("hand is required")
	errMissingField = errors.New("field is required")
)

// LoadFile reads and validates a pose document. An empty defaultKey means
// DefaultKey.
func LoadFile(path, defaultKey string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pose document: %w", err)
	}
	defer f.Close()

	lib, err := Load(f, FormatFromPath(path), defaultKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib, nil
}

// Load parses a whole document. Either every entry validates or nothing is
// returned.
func Load(r io.Reader, format Format, defaultKey string) (*Library, error) {
	entries, err := Decode(r, format)
	if err != nil {
		return nil, err
	}
	return NewLibrary(entries, defaultKey)
}

// Decode parses and validates entries without building a library.
func Decode(r io.Reader, format Format) (map[string]Entry, error) {
	var doc map[string]rawEntry

	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, &DataFormatError{Err: err}
		}
	case FormatTOML:
		var err error
		if doc, err = decodeTOML(r); err != nil {
			return nil, err
		}
	default:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, &DataFormatError{Err: err}
		}
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make(map[string]Entry, len(doc))
	for _, key := range keys {
		e, err := doc[key].entry()
		if err != nil {
			var dfe *DataFormatError
			if errors.As(err, &dfe) {
				dfe.Key = key
				return nil, dfe
			}
			return nil, &DataFormatError{Key: key, Err: err}
		}
		entries[key] = e
	}
	return entries, nil
}

type rawSegment struct {
	Pos []float32 `json:"pos" yaml:"pos" toml:"pos"`
	Hpr []float32 `json:"hpr" yaml:"hpr" toml:"hpr"`
}

type rawHand struct {
	Pos     []float32               `json:"pos" yaml:"pos" toml:"pos"`
	Hpr     []float32               `json:"hpr" yaml:"hpr" toml:"hpr"`
	Fingers map[string][]rawSegment `json:"fingers" yaml:"fingers" toml:"fingers"`
}

type rawPose struct {
	LeftHand  *rawHand `json:"leftHand" yaml:"leftHand" toml:"leftHand"`
	RightHand *rawHand `json:"rightHand" yaml:"rightHand" toml:"rightHand"`
}

// rawEntry is an object (single pose) or an array (clip).
type rawEntry struct {
	frames []rawPose
	clip   bool
}

func (r *rawEntry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		r.clip = true
		return json.Unmarshal(data, &r.frames)
	}
	var p rawPose
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	r.frames = []rawPose{p}
	return nil
}

func (r *rawEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		r.clip = true
		return node.Decode(&r.frames)
	}
	var p rawPose
	if err := node.Decode(&p); err != nil {
		return err
	}
	r.frames = []rawPose{p}
	return nil
}

// decodeTOML reads a document where a table is a single pose and an array of
// tables ([[key]]) is a clip.
func decodeTOML(r io.Reader) (map[string]rawEntry, error) {
	var prims map[string]toml.Primitive
	md, err := toml.NewDecoder(r).Decode(&prims)
	if err != nil {
		return nil, &DataFormatError{Err: err}
	}

	doc := make(map[string]rawEntry, len(prims))
	for key, prim := range prims {
		var raw rawEntry
		switch md.Type(key) {
		case "ArrayHash", "Array":
			raw.clip = true
			err = md.PrimitiveDecode(prim, &raw.frames)
		default:
			var p rawPose
			err = md.PrimitiveDecode(prim, &p)
			raw.frames = []rawPose{p}
		}
		if err != nil {
			return nil, &DataFormatError{Key: key, Err: err}
		}
		doc[key] = raw
	}
	return doc, nil
}

func (r rawEntry) entry() (Entry, error) {
	if len(r.frames) == 0 {
		return Entry{}, ErrEmptyClip
	}
	e := Entry{Frames: make([]Pose, 0, len(r.frames)), Clip: r.clip}
	for i, raw := range r.frames {
		prefix := ""
		if r.clip {
			prefix = fmt.Sprintf("[%d].", i)
		}
		p, err := raw.pose(prefix)
		if err != nil {
			return Entry{}, err
		}
		e.Frames = append(e.Frames, p)
	}
	return e, nil
}

func (r rawPose) pose(prefix string) (Pose, error) {
	left, err := r.LeftHand.hand(prefix + "leftHand")
	if err != nil {
		return Pose{}, err
	}
	right, err := r.RightHand.hand(prefix + "rightHand")
	if err != nil {
		return Pose{}, err
	}
	return Pose{Left: left, Right: right}, nil
}

func (h *rawHand) hand(path string) (Hand, error) {
	if h == nil {
		return Hand{}, &DataFormatError{Path: path, Err: errMissingHand}
	}
	t, err := transform(path, h.Pos, h.Hpr)
	if err != nil {
		return Hand{}, err
	}
	out := Hand{Transform: t}
	if len(h.Fingers) == 0 {
		return out, nil
	}

	out.Fingers = make(map[rig.Finger][]rig.Transform, len(h.Fingers))
	for name, segs := range h.Fingers {
		fpath := path + ".fingers." + name
		f, ok := rig.ParseFinger(name)
		if !ok {
			return Hand{}, &DataFormatError{Path: fpath, Err: errors.New("unknown finger")}
		}
		if len(segs) != f.Segments() {
			return Hand{}, &DataFormatError{
				Path: fpath,
				Err:  fmt.Errorf("%s needs %d segments, got %d", f, f.Segments(), len(segs)),
			}
		}
		chain := make([]rig.Transform, len(segs))
		for i, s := range segs {
			chain[i], err = transform(fmt.Sprintf("%s[%d]", fpath, i), s.Pos, s.Hpr)
			if err != nil {
				return Hand{}, err
			}
		}
		out.Fingers[f] = chain
	}
	return out, nil
}

func transform(path string, pos, hpr []float32) (rig.Transform, error) {
	p, err := vec3(path+".pos", pos)
	if err != nil {
		return rig.Transform{}, err
	}
	r, err := vec3(path+".hpr", hpr)
	if err != nil {
		return rig.Transform{}, err
	}
	return rig.Transform{Pos: p, Hpr: r}, nil
}

func vec3(path string, v []float32) (mgl32.Vec3, error) {
	if v == nil {
		return mgl32.Vec3{}, &DataFormatError{Path: path, Err: errMissingField}
	}
	if len(v) != 3 {
		return mgl32.Vec3{}, &DataFormatError{Path: path, Err: fmt.Errorf("want 3 values, got %d", len(v))}
	}
	return mgl32.Vec3{v[0], v[1], v[2]}, nil
}
