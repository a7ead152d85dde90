package render

import "strings"

const baseStyles = `
:host { all: initial; }
* { box-sizing: border-box; margin: 0; padding: 0; }
.widget {
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
  background: #fff;
  border-radius: 16px;
  box-shadow: 0 10px 40px rgba(0, 0, 0, 0.15);
  width: 380px;
  max-height: 600px;
  display: flex;
  flex-direction: column;
  overflow: hidden;
  animation: slideUp 0.3s ease-out;
}
@keyframes slideUp {
  from { opacity: 0; transform: translateY(20px); }
  to { opacity: 1; transform: translateY(0); }
}
.widget.minimized { width: 60px; height: 60px; border-radius: 30px; }
.launcher {
  width: 100%; height: 100%; border: 0; cursor: pointer;
  background: linear-gradient(135deg, #6366f1 0%, #8b5cf6 100%);
}
.widget-header {
  background: linear-gradient(135deg, #6366f1 0%, #8b5cf6 100%);
  color: #fff; padding: 20px;
  display: flex; justify-content: space-between; align-items: center;
}
.header-title { font-size: 18px; font-weight: 600; }
.close-btn { background: none; border: 0; color: #fff; font-size: 24px; cursor: pointer; }
.widget-body { padding: 24px; overflow-y: auto; flex: 1; }
.result { text-align: center; }
.progress { color: #9ca3af; font-size: 12px; margin-bottom: 8px; }
.echo { color: #6b7280; font-size: 13px; margin-bottom: 12px; }
.question { font-size: 16px; line-height: 1.5; color: #1f2937; margin-bottom: 16px; }
.input {
  width: 100%; padding: 12px 16px; border: 2px solid #e5e7eb; border-radius: 8px;
  font-size: 15px; font-family: inherit; resize: none;
}
.input:focus { outline: none; border-color: #6366f1; }
.options { display: flex; flex-direction: column; gap: 8px; margin-bottom: 16px; }
.option-btn { padding: 10px 14px; border: 2px solid #e5e7eb; border-radius: 8px; background: #fff; cursor: pointer; text-align: left; }
.submit-btn {
  display: inline-block; width: 100%; margin-top: 16px; padding: 12px 24px;
  background: linear-gradient(135deg, #6366f1 0%, #8b5cf6 100%);
  color: #fff; border: 0; border-radius: 8px; font-size: 16px; font-weight: 500;
  cursor: pointer; text-decoration: none; text-align: center;
}
.submit-btn:disabled { opacity: 0.6; cursor: not-allowed; }
.spinner {
  display: inline-block; width: 16px; height: 16px;
  border: 2px solid rgba(255, 255, 255, 0.3); border-top-color: #fff;
  border-radius: 50%; animation: spin 0.8s linear infinite; vertical-align: middle;
}
@keyframes spin { to { transform: rotate(360deg); } }
.offline-indicator { background: #fef3c7; color: #92400e; padding: 8px 12px; border-radius: 6px; font-size: 14px; margin-bottom: 16px; }
.error-message { background: #fee2e2; color: #991b1b; padding: 12px; border-radius: 8px; margin-bottom: 16px; }
.title { font-size: 20px; font-weight: 600; color: #1f2937; margin-bottom: 8px; }
.muted { color: #6b7280; margin-bottom: 24px; }
.accent { color: #6366f1; font-weight: 500; }
.icon { width: 64px; height: 64px; margin: 0 auto 16px; border-radius: 32px; }
.icon-check { background: #d1fae5; }
.icon-offline { background: #fef3c7; }
.powered-by { text-align: center; padding: 12px; font-size: 12px; color: #9ca3af; }
.powered-by a { color: #6366f1; text-decoration: none; }
`

const mobileStyles = `
.widget { width: calc(100vw - 32px); max-width: 400px; max-height: calc(100vh - 32px); }
.widget.minimized { width: 56px; height: 56px; }
`

// Stylesheet returns the CSS injected into the isolated root
func Stylesheet(mobile bool) string {
	if !mobile {
		return baseStyles
	}
	var b strings.Builder
	b.WriteString(baseStyles)
	b.WriteString(mobileStyles)
	return b.String()
}
