package panels

import (
	"fmt"
	"html"

	"github.com/koios/trmnl-renderer/pkg/models"
)

const problemMarkup = `<div class="layout layout--col panel-problem">
	<style>
		.panel-problem__icon { width: 20%%; height: auto; }
		.panel-problem__message { margin-top: 10px; }
	</style>
	<svg xmlns="http://www.w3.org/2000/svg" fill="none" viewBox="0 0 24 24" class="panel-problem__icon">
		<path stroke="#000" stroke-linecap="round" stroke-linejoin="round" stroke-width="2" d="M16 2H8L2 8v8l6 6h8l6-6V8zM12 8v4M12 16.02V16" />
	</svg>
	<p class="label text--black panel-problem__message">%s</p>
</div>`

// Problem renders a warning icon with message in place of panel content
func Problem(message string) string {
	return fmt.Sprintf(problemMarkup, html.EscapeString(message))
}

// Fallback is the generic placeholder used when a panel cannot be rendered
func Fallback() models.PanelRender {
	return models.PanelRender{
		HTML:   Problem("An unexpected error occurred!"),
		Failed: true,
	}
}
