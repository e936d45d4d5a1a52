package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

var templates = tmplStore{cache: make(tmplCache)}

type (
	tmplCacheEntry map[string]interface{}    // {ext: *Template}
	tmplCache      map[string]tmplCacheEntry // {name: {tmplCacheEntry}}

	tmplStore struct {
		mu    sync.RWMutex
		cache tmplCache
	}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName string
		Data    interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) getTemplate(ext string) (interface{}, bool) {
	templates.mu.RLock()
	defer templates.mu.RUnlock()
	cache, ok := templates.cache[m.TemplateName]
	if !ok {
		return nil, ok
	}
	tmplEntry, ok := cache[ext]
	return tmplEntry, ok
}

// Render fills TextContent and HTMLContent. appName is exposed to templates as .AppName.
func (m *EmailMessage) Render(appName string) error {
	ctxData := ContextData{AppName: appName, Data: m.TemplateData}

	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	} else if m.TemplateName != "" {
		if tmpl, ok := m.getTemplate(".txt"); ok {
			var buff bytes.Buffer
			if err := tmpl.(*texttmpl.Template).Execute(&buff, ctxData); err != nil {
				return errors.Wrap(err, "rendering text template")
			}
			m.TextContent = buff.String()
		}
	}

	if m.TemplateName != "" {
		if tmpl, ok := m.getTemplate(".gohtml"); ok {
			var buff bytes.Buffer
			if err := tmpl.(*htmltmpl.Template).Execute(&buff, ctxData); err != nil {
				return errors.Wrap(err, "rendering html template")
			}
			m.HTMLContent = buff.String()
		}
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// ParseEmailTemplates loads `*.txt` and `*.gohtml` templates from dir in fsys.
// Files starting with "_" are base layouts shared by the templates of the same extension.
func ParseEmailTemplates(fsys fs.FS, dir string, strict bool, logger Logger) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		logger.Error(fmt.Sprintf("reading email templates: %v", err), err)
		return
	}

	cache := make(tmplCache)
	for _, e := range entries {
		fname := e.Name()
		ext := path.Ext(fname)
		if e.IsDir() || strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := cache[name]
		if !ok {
			entry = make(tmplCacheEntry)
			cache[name] = entry
		}

		base := path.Join(dir, "_base"+ext)
		fp := path.Join(dir, fname)
		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(fsys, base, fp)
			if err != nil {
				logger.Error(fmt.Sprintf("parsing email template %s: %v", fp, err), err)
				continue
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		} else {
			tmpl, err := htmltmpl.ParseFS(fsys, base, fp)
			if err != nil {
				logger.Error(fmt.Sprintf("parsing email template %s: %v", fp, err), err)
				continue
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		}
	}

	templates.mu.Lock()
	templates.cache = cache
	templates.mu.Unlock()
}
