package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/oukeidos/ebt/internal/apperrors"
	"github.com/oukeidos/ebt/internal/files"
	"github.com/oukeidos/ebt/internal/logger"
	epubreader "github.com/simp-lee/epub"
)

const (
	containerPath = "META-INF/container.xml"
	mimetypeName  = "mimetype"
	mimetype      = "application/epub+zip"

	MediaTypeXHTML = "application/xhtml+xml"
)

type container struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		TOC      string       `xml:"toc,attr"`
		ItemRefs []opfItemRef `xml:"itemref"`
	} `xml:"spine"`
}

type opfMetadata struct {
	Titles    []string `xml:"title"`
	Languages []string `xml:"language"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

// Document is a content document listed in the spine.
type Document struct {
	ID     string
	Name   string // zip member path
	Linear bool
}

// Metadata holds the package level fields used for reporting.
type Metadata struct {
	Title    string
	Language string
}

// Package is an opened EPUB archive. Members can be replaced before Build
// writes a new archive; everything else is copied unchanged.
type Package struct {
	path     string
	rc       *zip.ReadCloser
	members  []*zip.File
	byName   map[string]*zip.File
	replaced map[string][]byte

	opfPath  string
	metadata Metadata
	docs     []Document
}

// Open reads the container, the package document, its manifest and spine.
// DRM protected packages are rejected.
func Open(path string) (*Package, error) {
	book, err := epubreader.Open(path)
	if errors.Is(err, epubreader.ErrDRMProtected) {
		return nil, apperrors.Assembly(fmt.Errorf("package is DRM protected: %w", err))
	}
	if err != nil {
		// The manifest walk below reports structural problems precisely.
		logger.Debug("EPUB reader rejected package; reading manifest directly", "error", err)
		book = nil
	}
	if book != nil {
		defer book.Close()
	}

	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, apperrors.Assembly(fmt.Errorf("failed to open archive: %w", err))
	}
	p := &Package{
		path:     path,
		rc:       rc,
		members:  rc.File,
		byName:   make(map[string]*zip.File, len(rc.File)),
		replaced: map[string][]byte{},
	}
	for _, f := range rc.File {
		p.byName[f.Name] = f
	}
	if err := p.load(); err != nil {
		rc.Close()
		return nil, err
	}
	if book != nil {
		if md := book.Metadata(); len(md.Titles) > 0 && strings.TrimSpace(md.Titles[0]) != "" {
			p.metadata.Title = strings.TrimSpace(md.Titles[0])
		}
	}
	return p, nil
}

// Close releases the source archive.
func (p *Package) Close() error {
	return p.rc.Close()
}

func (p *Package) load() error {
	raw, err := p.readOriginal(containerPath)
	if err != nil {
		return err
	}
	var c container
	if err := xml.Unmarshal(raw, &c); err != nil {
		return apperrors.Assembly(fmt.Errorf("failed to parse %s: %w", containerPath, err))
	}
	for _, rf := range c.Rootfiles {
		if rf.MediaType == "" || rf.MediaType == "application/oebps-package+xml" {
			p.opfPath = rf.FullPath
			break
		}
	}
	if p.opfPath == "" {
		return apperrors.Assembly(fmt.Errorf("container lists no package document"))
	}

	raw, err = p.readOriginal(p.opfPath)
	if err != nil {
		return err
	}
	var opf opfPackage
	if err := xml.Unmarshal(raw, &opf); err != nil {
		return apperrors.Assembly(fmt.Errorf("failed to parse %s: %w", p.opfPath, err))
	}
	if len(opf.Metadata.Titles) > 0 {
		p.metadata.Title = strings.TrimSpace(opf.Metadata.Titles[0])
	}
	if len(opf.Metadata.Languages) > 0 {
		p.metadata.Language = strings.TrimSpace(opf.Metadata.Languages[0])
	}

	base := path.Dir(p.opfPath)
	items := make(map[string]opfItem, len(opf.Manifest.Items))
	for _, it := range opf.Manifest.Items {
		name, err := resolveHref(base, it.Href)
		if err != nil {
			return apperrors.Assembly(fmt.Errorf("manifest item %s: %w", it.ID, err))
		}
		if _, ok := p.byName[name]; !ok {
			return apperrors.Assembly(fmt.Errorf("manifest item %s points to missing member %s", it.ID, name))
		}
		it.Href = name
		items[it.ID] = it
	}
	for _, ref := range opf.Spine.ItemRefs {
		it, ok := items[ref.IDRef]
		if !ok {
			return apperrors.Assembly(fmt.Errorf("spine references unknown item %s", ref.IDRef))
		}
		if it.MediaType != MediaTypeXHTML || hasProperty(it.Properties, "nav") {
			continue
		}
		p.docs = append(p.docs, Document{ID: it.ID, Name: it.Href, Linear: ref.Linear != "no"})
	}
	return nil
}

// Metadata returns the package title and language.
func (p *Package) Metadata() Metadata { return p.metadata }

// DocumentMembers returns the translatable documents in spine order. The
// navigation document is not included.
func (p *Package) DocumentMembers() []Document {
	out := make([]Document, len(p.docs))
	copy(out, p.docs)
	return out
}

// Members returns every member name in archive order.
func (p *Package) Members() []string {
	names := make([]string, len(p.members))
	for i, f := range p.members {
		names[i] = f.Name
	}
	return names
}

// ReadMember returns the original contents of a member.
func (p *Package) ReadMember(name string) ([]byte, error) {
	return p.readOriginal(name)
}

// WriteMember replaces the contents of an existing member in the next Build.
func (p *Package) WriteMember(name string, data []byte) error {
	if _, ok := p.byName[name]; !ok {
		return apperrors.Assembly(fmt.Errorf("cannot replace missing member %s", name))
	}
	if name == mimetypeName {
		return apperrors.Assembly(fmt.Errorf("the mimetype member cannot be replaced"))
	}
	p.replaced[name] = data
	return nil
}

// Build writes the archive to outputPath: mimetype first and stored, then
// every other member in original order with replaced contents where set.
func (p *Package) Build(outputPath string) error {
	if err := files.AtomicWriteFunc(outputPath, 0644, p.writeArchive); err != nil {
		return apperrors.Assembly(err)
	}
	return nil
}

func (p *Package) writeArchive(out io.Writer) error {
	zw := zip.NewWriter(out)

	hdr := &zip.FileHeader{Name: mimetypeName, Method: zip.Store}
	if f, ok := p.byName[mimetypeName]; ok {
		hdr.Modified = f.Modified
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, mimetype); err != nil {
		return err
	}

	for _, f := range p.members {
		if f.Name == mimetypeName {
			continue
		}
		data, ok := p.replaced[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("failed to copy %s: %w", f.Name, err)
			}
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
		})
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	return zw.Close()
}

func (p *Package) readOriginal(name string) ([]byte, error) {
	f, ok := p.byName[name]
	if !ok {
		return nil, apperrors.Assembly(fmt.Errorf("missing member %s", name))
	}
	r, err := f.Open()
	if err != nil {
		return nil, apperrors.Assembly(fmt.Errorf("failed to open %s: %w", name, err))
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Assembly(fmt.Errorf("failed to read %s: %w", name, err))
	}
	return data, nil
}

// resolveHref turns a manifest href into a member path relative to the
// archive root.
func resolveHref(base, href string) (string, error) {
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		href = href[:i]
	}
	unescaped, err := url.PathUnescape(href)
	if err != nil {
		return "", fmt.Errorf("invalid href %q: %w", href, err)
	}
	if unescaped == "" || strings.HasPrefix(unescaped, "/") {
		return "", fmt.Errorf("invalid href %q", href)
	}
	name := path.Join(base, unescaped)
	if name == ".." || strings.HasPrefix(name, "../") {
		return "", fmt.Errorf("href %q escapes the archive", href)
	}
	return name, nil
}

func hasProperty(props, want string) bool {
	for _, p := range strings.Fields(props) {
		if p == want {
			return true
		}
	}
	return false
}
