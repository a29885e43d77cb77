package msgcat

import (
    "embed"
    "errors"
    "fmt"
    "io/fs"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"
    "text/template"

    yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

const embeddedName = "messages.en.yaml"

// Keys used by the player controller.
const (
    KeyCheckmate     = "status.checkmate"
    KeyDraw          = "status.draw"
    KeyStalemate     = "status.stalemate"
    KeyThreefold     = "status.threefold"
    KeyInsufficient  = "status.insufficient"
    KeyCheck         = "status.check"
    KeyToMove        = "status.to_move"
    KeyYourTurn      = "status.your_turn"
    KeyOpponentTurn  = "status.opponent_turn"
    KeyFinding       = "match.finding"
    KeyWaiting       = "match.waiting"
    KeyStarted       = "match.started"
    KeyOpponentLeft  = "match.opponent_left"
    KeyMoveEntry     = "moves.entry"
)

var ErrNotFound = errors.New("msgcat: template not found")

// Catalog holds flattened dot-key templates, embedded defaults first and then any
// overrides. Templates are parsed once on load; unknown fields fail at render time.
type Catalog struct {
    mu    sync.RWMutex
    data  map[string]string
    tmpls map[string]*template.Template
}

var (
    defaultOnce sync.Once
    defaultCat  *Catalog
    defaultErr  error
)

// Default returns the shared catalog built from the embedded messages only.
func Default() (*Catalog, error) {
    defaultOnce.Do(func() { defaultCat, defaultErr = New("") })
    return defaultCat, defaultErr
}

// New loads the embedded messages and then applies *.yaml / *.yml overrides from dir.
func New(overrideDir string) (*Catalog, error) {
    c := &Catalog{data: make(map[string]string), tmpls: make(map[string]*template.Template)}

    raw, err := fs.ReadFile(defaultFiles, embeddedName)
    if err != nil {
        return nil, fmt.Errorf("read embedded messages: %w", err)
    }
    flat, err := parseYAMLToFlat(raw)
    if err != nil {
        return nil, fmt.Errorf("parse embedded messages: %w", err)
    }
    if err := c.apply(flat); err != nil { return nil, err }

    if strings.TrimSpace(overrideDir) != "" {
        if err := c.applyDir(overrideDir); err != nil {
            return nil, err
        }
    }
    return c, nil
}

func (c *Catalog) applyDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil {
        return fmt.Errorf("read override dir: %w", err)
    }
    files := make([]string, 0, len(entries))
    for _, e := range entries {
        if e.IsDir() { continue }
        ext := strings.ToLower(filepath.Ext(e.Name()))
        if ext == ".yaml" || ext == ".yml" { files = append(files, e.Name()) }
    }
    sort.Strings(files)

    // key -> file that set it; two override files may not fight over one key
    seen := make(map[string]string)
    for _, name := range files {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return fmt.Errorf("read %s: %w", name, err) }
        flat, err := parseYAMLToFlat(b)
        if err != nil { return fmt.Errorf("parse %s: %w", name, err) }
        for k := range flat {
            if prev, ok := seen[k]; ok {
                return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
            }
            seen[k] = name
        }
        if err := c.apply(flat); err != nil { return fmt.Errorf("%s: %w", name, err) }
    }
    return nil
}

func (c *Catalog) apply(flat map[string]string) error {
    parsed := make(map[string]*template.Template, len(flat))
    for k, v := range flat {
        t, err := template.New(k).Option("missingkey=error").Parse(v)
        if err != nil { return fmt.Errorf("template %s: %w", k, err) }
        parsed[k] = t
    }
    c.mu.Lock()
    for k, v := range flat {
        c.data[k] = v
        c.tmpls[k] = parsed[k]
    }
    c.mu.Unlock()
    return nil
}

func parseYAMLToFlat(b []byte) (map[string]string, error) {
    var m map[string]any
    if err := yaml.Unmarshal(b, &m); err != nil {
        return nil, err
    }
    flat := make(map[string]string)
    if err := flattenStrings(m, "", flat); err != nil {
        return nil, err
    }
    return flat, nil
}

func flattenStrings(src any, prefix string, out map[string]string) error {
    switch v := src.(type) {
    case map[string]any:
        for k, vv := range v {
            key := k
            if prefix != "" { key = prefix + "." + k }
            if err := flattenStrings(vv, key, out); err != nil { return err }
        }
        return nil
    case string:
        if prefix == "" { return errors.New("string value without key prefix") }
        out[prefix] = v
        return nil
    case nil:
        return nil
    default:
        return fmt.Errorf("unsupported value at %s: %T", prefix, v)
    }
}

// Render executes the template stored under key.
func (c *Catalog) Render(key string, data any) (string, error) {
    key = strings.TrimSpace(key)
    c.mu.RLock()
    t, ok := c.tmpls[key]
    c.mu.RUnlock()
    if !ok || strings.TrimSpace(c.raw(key)) == "" {
        return "", fmt.Errorf("%w: %s", ErrNotFound, key)
    }
    var b strings.Builder
    if err := t.Execute(&b, data); err != nil { return "", err }
    return b.String(), nil
}

// Text renders key and falls back to fallback on any error.
func (c *Catalog) Text(key string, data any, fallback string) string {
    if c == nil { return fallback }
    s, err := c.Render(key, data)
    if err != nil { return fallback }
    return s
}

// Keys lists every loaded key, sorted.
func (c *Catalog) Keys() []string {
    c.mu.RLock()
    defer c.mu.RUnlock()
    out := make([]string, 0, len(c.data))
    for k := range c.data { out = append(out, k) }
    sort.Strings(out)
    return out
}

func (c *Catalog) raw(key string) string {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return c.data[key]
}
