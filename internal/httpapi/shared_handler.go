package httpapi

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/russross/blackfriday"

	"cyris/internal/chat"
	"cyris/internal/models"
	"cyris/internal/storage"
	"cyris/internal/utils"
)

const sharedNotFoundText = "Shared chat not found"

const (
	markdownHTMLFlags = blackfriday.HTML_SKIP_HTML |
		blackfriday.HTML_SKIP_STYLE |
		blackfriday.HTML_SAFELINK |
		blackfriday.HTML_NOFOLLOW_LINKS |
		blackfriday.HTML_NOREFERRER_LINKS |
		blackfriday.HTML_NOOPENER_LINKS |
		blackfriday.HTML_HREF_TARGET_BLANK

	markdownExtensions = blackfriday.EXTENSION_NO_INTRA_EMPHASIS |
		blackfriday.EXTENSION_TABLES |
		blackfriday.EXTENSION_FENCED_CODE |
		blackfriday.EXTENSION_AUTOLINK |
		blackfriday.EXTENSION_STRIKETHROUGH |
		blackfriday.EXTENSION_SPACE_HEADERS
)

var sharedPage = template.Must(template.New("shared").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - Cyris AI</title>
<style>
body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;color:#1f2933}
.msg{padding:.75rem 1rem;margin:.75rem 0;border-radius:.5rem}
.user{background:#eef2f7;white-space:pre-wrap}
.assistant{background:#fff;border:1px solid #e4e7eb}
.model{font-size:.75rem;color:#7b8794;margin-bottom:.25rem}
pre{overflow-x:auto;background:#f5f7fa;padding:.5rem}
footer{font-size:.8rem;color:#7b8794;margin-top:2rem}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Messages}}<div class="msg {{.Role}}">{{if .Model}}<div class="model">{{.Model}}</div>{{end}}{{.Body}}</div>
{{end}}<footer>Shared{{if .SharedAt}} on {{.SharedAt}}{{end}} from Cyris AI. This is a read-only view.</footer>
</body>
</html>
`))

type sharedPageMessage struct {
	Role  string
	Model string
	Body  template.HTML
}

type sharedPageData struct {
	Title    string
	SharedAt string
	Messages []sharedPageMessage
}

// loadShared returns the deduplicated public view of a shared chat
func (d *Dependencies) loadShared(r *http.Request) (*models.SharedChat, error) {
	c, err := d.Chats.GetShared(r.Context(), r.PathValue("shareId"))
	if err != nil {
		return nil, err
	}
	return chat.ForDisplay(c).Shared(), nil
}

// handleGetSharedChat handles GET /api/shared/{shareId}
func (d *Dependencies) handleGetSharedChat(w http.ResponseWriter, r *http.Request) {
	shared, err := d.loadShared(r)
	if errors.Is(err, storage.ErrShareNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, sharedNotFoundText)
		return
	}
	if err != nil {
		d.respondWithStoreError(w, r, "get shared chat", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, shared)
}

// handleSharedChatPage handles GET /shared/{shareId}, the read-only HTML view
func (d *Dependencies) handleSharedChatPage(w http.ResponseWriter, r *http.Request) {
	shared, err := d.loadShared(r)
	if errors.Is(err, storage.ErrShareNotFound) {
		http.Error(w, sharedNotFoundText, http.StatusNotFound)
		return
	}
	if err != nil {
		d.log().Error("Failed to load shared chat page", "error", err)
		http.Error(w, internalErrorText, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src https: data:; style-src 'unsafe-inline'")
	if err := sharedPage.Execute(w, d.sharedPageData(shared)); err != nil {
		d.log().Error("Failed to render shared chat page", "error", err)
	}
}

func (d *Dependencies) sharedPageData(shared *models.SharedChat) sharedPageData {
	data := sharedPageData{Title: shared.Title}
	if shared.SharedAt != nil {
		data.SharedAt = shared.SharedAt.Format("January 2, 2006")
	}

	for _, m := range shared.Messages {
		if m.Role == models.RoleSystem {
			continue
		}
		msg := sharedPageMessage{Role: string(m.Role)}
		if m.Role == models.RoleAssistant {
			msg.Body = renderMarkdown(m.Content)
			if m.ModelID != "" && d.Registry != nil {
				msg.Model = d.Registry.DisplayName(m.ModelID)
			} else {
				msg.Model = m.ModelID
			}
		} else {
			msg.Body = template.HTML(template.HTMLEscapeString(m.Content))
		}
		data.Messages = append(data.Messages, msg)
	}
	return data
}

// renderMarkdown converts assistant markdown to HTML with raw HTML stripped
func renderMarkdown(content string) template.HTML {
	renderer := blackfriday.HtmlRenderer(markdownHTMLFlags, "", "")
	return template.HTML(blackfriday.Markdown([]byte(content), renderer, markdownExtensions))
}
