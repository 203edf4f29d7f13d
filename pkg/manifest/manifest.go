package manifest

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/compose-sync/pkg/errors"
)

const (
	servicesKey = "services"
	imageKey    = "image"
)

var (
	ErrMissingFile    = errors.New("manifest file does not exist")
	ErrMalformed      = errors.New("manifest has no top-level services mapping")
	ErrUnknownService = errors.New("service not found in manifest")
	// ErrNoImage is returned for a service that has no image, e.g.,
	// because it is built from source.
	ErrNoImage = errors.New("service has no image")
)

// Manifest is a docker-compose file on disk. Every operation reads
// the file afresh; nothing is cached between calls.
type Manifest struct {
	path  string
	codec Codec
}

func New(path string, codec Codec) *Manifest {
	if codec == nil {
		codec = YAML
	}
	return &Manifest{path: path, codec: codec}
}

func (m *Manifest) Path() string {
	return m.path
}

// Services returns the names of the services in the manifest, in the
// order given by the codec.
func (m *Manifest) Services() ([]string, error) {
	doc, err := m.read()
	if err != nil {
		return nil, err
	}
	return m.services(doc)
}

// Image returns the image reference of the named service.
func (m *Manifest) Image(service string) (string, error) {
	doc, err := m.read()
	if err != nil {
		return "", err
	}
	if err := m.mustHaveService(doc, service); err != nil {
		return "", err
	}
	ref, err := m.codec.Get(doc, servicesKey, service, imageKey)
	switch {
	case errors.Is(err, ErrPathNotFound):
		return "", &fluxerr.Error{
			Type: fluxerr.Missing,
			Err:  errors.Wrapf(ErrNoImage, "service %q in %s", service, m.path),
		}
	case err != nil:
		return "", lookupError(m.path, service, err)
	}
	return ref, nil
}

// SetImage rewrites the image reference of the named service, leaving
// everything else in the file as it was.
func (m *Manifest) SetImage(service, ref string) error {
	doc, err := m.read()
	if err != nil {
		return err
	}
	if err := m.mustHaveService(doc, service); err != nil {
		return err
	}
	out, err := m.codec.Set(doc, ref, servicesKey, service, imageKey)
	if err != nil {
		return lookupError(m.path, service, err)
	}
	return m.write(out)
}

func (m *Manifest) services(doc []byte) ([]string, error) {
	names, err := m.codec.Keys(doc, servicesKey)
	if err != nil {
		return nil, MalformedError(m.path, err)
	}
	return names, nil
}

func (m *Manifest) mustHaveService(doc []byte, service string) error {
	names, err := m.services(doc)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == service {
			return nil
		}
	}
	return lookupError(m.path, service, ErrUnknownService)
}

func (m *Manifest) read() ([]byte, error) {
	doc, err := ioutil.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil, MissingFileError(m.path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", m.path)
	}
	return doc, nil
}

// write replaces the manifest atomically, keeping its file mode.
func (m *Manifest) write(doc []byte) error {
	info, err := os.Stat(m.path)
	if err != nil {
		return errors.Wrapf(err, "stat manifest %s", m.path)
	}
	tmp, err := ioutil.TempFile(filepath.Dir(m.path), "."+filepath.Base(m.path)+".")
	if err != nil {
		return errors.Wrap(err, "creating temporary manifest")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temporary manifest")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "writing temporary manifest")
	}
	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return errors.Wrap(err, "setting manifest permissions")
	}
	return errors.Wrapf(os.Rename(tmp.Name(), m.path), "replacing manifest %s", m.path)
}
