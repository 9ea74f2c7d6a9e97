// Package bundle moves a quiz and its questions between deployments as a zip
// package: manifest.json, quiz.json and one questions/<id>.json per question.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/algodrill/algodrill/internal/attempt"
	"github.com/algodrill/algodrill/internal/question"
)

const (
	FormatVersion = 1

	manifestName = "manifest.json"
	quizName     = "quiz.json"
	questionDir  = "questions/"

	// maxEntrySize caps every file read from an uploaded package.
	maxEntrySize = 4 << 20
)

var ErrBadPackage = errors.New("invalid quiz package")

type Manifest struct {
	Version   int      `json:"version"`
	QuizID    string   `json:"quizId"`
	Title     string   `json:"title"`
	Questions []string `json:"questions"` // file names under questions/, in quiz order
}

// Package is a decoded bundle.
type Package struct {
	Quiz      attempt.Quiz
	Questions []question.Question
}

// Build writes quiz and its questions, answer keys included, as a zip archive.
func Build(quiz attempt.Quiz, questions []question.Question) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	mf := Manifest{Version: FormatVersion, QuizID: quiz.ID, Title: quiz.Title}
	for _, q := range questions {
		name := questionDir + q.ID + ".json"
		mf.Questions = append(mf.Questions, name)
		q.CreatedBy, q.CreatedAt = "", 0
		if err := writeJSON(zw, name, q); err != nil {
			return nil, err
		}
	}
	quiz.CreatedBy, quiz.CreatedAt = "", 0
	if err := writeJSON(zw, quizName, quiz); err != nil {
		return nil, err
	}
	if err := writeJSON(zw, manifestName, mf); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Read decodes and validates a package. Every question must pass validation and
// the quiz must reference exactly the questions the package carries.
func Read(r io.ReaderAt, size int64) (Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return Package{}, fmt.Errorf("%w: %v", ErrBadPackage, err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[path.Clean(f.Name)] = f
	}

	var mf Manifest
	if err := readJSON(files, manifestName, &mf); err != nil {
		return Package{}, err
	}
	if mf.Version != FormatVersion {
		return Package{}, fmt.Errorf("%w: unsupported version %d", ErrBadPackage, mf.Version)
	}

	var pkg Package
	if err := readJSON(files, quizName, &pkg.Quiz); err != nil {
		return Package{}, err
	}
	byID := map[string]bool{}
	for _, name := range mf.Questions {
		if !strings.HasPrefix(name, questionDir) {
			return Package{}, fmt.Errorf("%w: question outside %s: %s", ErrBadPackage, questionDir, name)
		}
		var q question.Question
		if err := readJSON(files, name, &q); err != nil {
			return Package{}, err
		}
		if err := q.Validate(); err != nil {
			return Package{}, fmt.Errorf("%w: %s: %v", ErrBadPackage, name, err)
		}
		byID[q.ID] = true
		pkg.Questions = append(pkg.Questions, q)
	}
	for _, id := range pkg.Quiz.QuestionIDs {
		if !byID[id] {
			return Package{}, fmt.Errorf("%w: quiz references missing question %s", ErrBadPackage, id)
		}
	}
	return pkg, nil
}

func readJSON(files map[string]*zip.File, name string, v any) error {
	f, ok := files[name]
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrBadPackage, name)
	}
	if f.UncompressedSize64 > maxEntrySize {
		return fmt.Errorf("%w: %s too large", ErrBadPackage, name)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPackage, name, err)
	}
	defer rc.Close()
	if err := json.NewDecoder(io.LimitReader(rc, maxEntrySize)).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPackage, name, err)
	}
	return nil
}
