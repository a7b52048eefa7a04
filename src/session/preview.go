package session

import (
	"context"
	"errors"
	"log"
	"time"

	"snipping-tool/src/messages"
	"snipping-tool/src/notification"
	"snipping-tool/src/overlay"
	"snipping-tool/src/screenshot"
)

// Preview element ids; all are children of overlay.IDPreviewContainer.
const (
	IDPreviewTitle = "snip-preview-title"
	IDPreviewImage = "snip-preview-image"
	IDSaveButton   = "snip-btn-save"
	IDDiscard      = "snip-btn-discard"
	IDCopyButton   = "snip-btn-copy"
)

// Button labels.
const (
	LabelSave    = "Save"
	LabelSaving  = "Saving..."
	LabelSaved   = "Done"
	LabelError   = "Error"
	LabelDiscard = "Discard"
	LabelCopy    = "Copy"
	LabelCopied  = "Copied"
	TitleText    = "Capture complete"
	StylesText   = ".snip-btn{flex:1}.snip-btn-save{background:#00c853}.snip-btn-discard{color:#d32f2f}"
)

// Delays after a save attempt.
const (
	SavedRemoveDelay  = 800 * time.Millisecond
	ErrorRestoreDelay = 2 * time.Second
	previewGlobalKey  = "__snipPreview"
)

// PreviewTarget shows the capture in the page with Save, Discard and Copy.
type PreviewTarget struct {
	Controller overlay.Messenger
	Folder     func() string
	Copy       func(png []byte) error
	Now        func() time.Time
	Policy     ReportPolicy
}

type preview struct {
	target    PreviewTarget
	doc       *overlay.Document
	dataURL   string
	listeners []overlay.ListenerID
	saving    bool
	removed   bool
}

func (t PreviewTarget) Deliver(ctx context.Context, doc *overlay.Document, dataURL string) error {
	if t.Controller == nil {
		return errors.New("preview target missing controller")
	}
	_, png, err := screenshot.DecodeDataURL(dataURL)
	if err != nil {
		return err
	}
	thumb, err := screenshot.Thumbnail(png, screenshot.PreviewMaxWidth, screenshot.PreviewMaxHeight)
	if err != nil {
		log.Printf("Preview: thumbnail failed, showing full image: %v", err)
		thumb = png
	}

	p := &preview{target: t, doc: doc, dataURL: dataURL}
	var renderErr error
	if err := doc.Do(func() { renderErr = p.render(thumb) }); err != nil {
		return err
	}
	return renderErr
}

// render runs on the page loop.
func (p *preview) render(thumb []byte) error {
	if prev, ok := p.doc.Global(previewGlobalKey); ok {
		if old, ok := prev.(*preview); ok {
			old.remove()
		}
	}
	p.doc.Remove(overlay.IDPreviewContainer)

	if _, ok := p.doc.Element(overlay.IDStyles); !ok {
		if err := p.doc.Append(overlay.Element{ID: overlay.IDStyles, Text: StylesText}); err != nil {
			return err
		}
	}

	for _, el := range []overlay.Element{
		{ID: overlay.IDPreviewContainer},
		{ID: IDPreviewTitle, Parent: overlay.IDPreviewContainer, Text: TitleText},
		{ID: IDPreviewImage, Parent: overlay.IDPreviewContainer, Image: thumb},
		{ID: IDDiscard, Parent: overlay.IDPreviewContainer, Class: "snip-btn snip-btn-discard", Text: LabelDiscard},
		{ID: IDCopyButton, Parent: overlay.IDPreviewContainer, Class: "snip-btn", Text: LabelCopy},
		{ID: IDSaveButton, Parent: overlay.IDPreviewContainer, Class: "snip-btn snip-btn-save", Text: LabelSave},
	} {
		if err := p.doc.Append(el); err != nil {
			p.remove()
			return err
		}
	}

	p.listeners = []overlay.ListenerID{
		p.doc.AddListener(overlay.Click, IDSaveButton, func(overlay.Event) { p.save() }),
		p.doc.AddListener(overlay.Click, IDDiscard, func(overlay.Event) { p.discard() }),
		p.doc.AddListener(overlay.Click, IDCopyButton, func(overlay.Event) { p.copy() }),
	}
	p.doc.SetGlobal(previewGlobalKey, p)
	return nil
}

func (p *preview) remove() {
	if p.removed {
		return
	}
	p.removed = true
	for _, id := range p.listeners {
		p.doc.RemoveListener(id)
	}
	p.listeners = nil
	p.doc.Remove(overlay.IDPreviewContainer)
	if cur, ok := p.doc.Global(previewGlobalKey); ok && cur == p {
		p.doc.DeleteGlobal(previewGlobalKey)
	}
}

func (p *preview) discard() {
	log.Printf("Preview: discarded")
	p.remove()
	if p.target.Policy.Sink != nil {
		p.target.Policy.Sink.Notify(notification.Info, "Discarded")
	}
}

func (p *preview) save() {
	if p.saving || p.removed {
		return
	}
	p.saving = true
	p.doc.Update(IDSaveButton, func(el *overlay.Element) {
		el.Disabled = true
		el.Text = LabelSaving
	})

	folder := ""
	if p.target.Folder != nil {
		folder = p.target.Folder()
	}
	now := time.Now
	if p.target.Now != nil {
		now = p.target.Now
	}
	msg := messages.PersistImage{DataURL: p.dataURL, Filename: screenshot.Filename(now()), Folder: folder}

	go func() {
		res, err := p.target.Controller.Call(context.Background(), msg)
		if err == nil {
			err = res.Err()
		}
		p.doc.Post(func() { p.saved(err) })
	}()
}

// saved runs on the page loop once the controller answered.
func (p *preview) saved(err error) {
	p.saving = false
	if p.removed {
		return
	}
	if err != nil {
		p.target.Policy.Report(ClassPersistence, err)
		p.doc.Update(IDSaveButton, func(el *overlay.Element) {
			el.Disabled = false
			el.Text = LabelError
		})
		p.doc.After(ErrorRestoreDelay, func() {
			p.doc.Update(IDSaveButton, func(el *overlay.Element) {
				if el.Text == LabelError {
					el.Text = LabelSave
				}
			})
		})
		return
	}

	log.Printf("Preview: saved")
	if p.target.Policy.Sink != nil {
		p.target.Policy.Sink.Notify(notification.Success, "Saved")
	}
	p.doc.Update(IDSaveButton, func(el *overlay.Element) { el.Text = LabelSaved })
	p.doc.After(SavedRemoveDelay, p.remove)
}

func (p *preview) copy() {
	if p.target.Copy == nil || p.removed {
		return
	}
	_, png, err := screenshot.DecodeDataURL(p.dataURL)
	if err == nil {
		err = p.target.Copy(png)
	}
	if err != nil {
		log.Printf("Preview: copy failed: %v", err)
		return
	}
	p.doc.Update(IDCopyButton, func(el *overlay.Element) { el.Text = LabelCopied })
}
