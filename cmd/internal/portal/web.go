package portal

import (
	"html/template"
	"io"
)

// pageData feeds the single-page form template.
type pageData struct {
	Token   string
	EnvFile string

	// KeyName pre-populates a single key so the human only pastes the value.
	KeyName   string
	SingleKey bool

	// Instructions is operator-supplied guide text; basic HTML is allowed.
	Instructions template.HTML
	Link         string
	LinkText     string
}

func renderPage(w io.Writer, d pageData) error {
	return pageTmpl.Execute(w, d)
}

// instructionsHTML marks the operator-supplied guide text as trusted markup.
// It comes from the operator's own flag, never from the network.
func instructionsHTML(s string) template.HTML { return template.HTML(s) }

var pageTmpl = template.Must(template.New("portal").Parse(pageHTML))

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>🔐 Secret Portal</title>
<style>
  :root {
    --bg: #0d1117;
    --surface: #161b22;
    --border: #30363d;
    --text: #e6edf3;
    --muted: #8b949e;
    --accent: #58a6ff;
    --accent-hover: #79c0ff;
    --green: #3fb950;
    --red: #f85149;
  }
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
    background: var(--bg);
    color: var(--text);
    min-height: 100vh;
    display: flex;
    align-items: center;
    justify-content: center;
    padding: 1rem;
  }
  .container {
    max-width: 560px;
    width: 100%;
  }
  .header {
    text-align: center;
    margin-bottom: 2rem;
  }
  .header h1 {
    font-size: 1.5rem;
    margin-bottom: 0.5rem;
  }
  .header p {
    color: var(--muted);
    font-size: 0.875rem;
  }
  .card {
    background: var(--surface);
    border: 1px solid var(--border);
    border-radius: 12px;
    padding: 1.5rem;
  }
  .entry {
    display: flex;
    gap: 0.5rem;
    margin-bottom: 0.75rem;
    align-items: center;
  }
  .entry input {
    flex: 1;
    padding: 0.6rem 0.75rem;
    background: var(--bg);
    border: 1px solid var(--border);
    border-radius: 8px;
    color: var(--text);
    font-size: 0.875rem;
    font-family: 'SF Mono', 'Fira Code', monospace;
  }
  .entry input:focus {
    outline: none;
    border-color: var(--accent);
  }
  .entry input.key-input {
    flex: 0.8;
    text-transform: uppercase;
  }
  .entry input.val-input {
    flex: 1.2;
  }
  .entry .remove-btn {
    background: none;
    border: none;
    color: var(--muted);
    cursor: pointer;
    font-size: 1.2rem;
    padding: 0.25rem;
    border-radius: 4px;
    line-height: 1;
  }
  .entry .remove-btn:hover { color: var(--red); }
  .actions {
    display: flex;
    gap: 0.75rem;
    margin-top: 1.25rem;
  }
  .btn {
    padding: 0.6rem 1.25rem;
    border: none;
    border-radius: 8px;
    font-size: 0.875rem;
    cursor: pointer;
    font-weight: 500;
    transition: all 0.15s;
  }
  .btn-primary {
    background: var(--accent);
    color: var(--bg);
    flex: 1;
  }
  .btn-primary:hover { background: var(--accent-hover); }
  .btn-secondary {
    background: var(--bg);
    color: var(--text);
    border: 1px solid var(--border);
  }
  .btn-secondary:hover { border-color: var(--muted); }
  .btn:disabled {
    opacity: 0.5;
    cursor: not-allowed;
  }
  .status {
    text-align: center;
    margin-top: 1.25rem;
    padding: 0.75rem;
    border-radius: 8px;
    font-size: 0.875rem;
    display: none;
  }
  .status.success {
    display: block;
    background: rgba(63, 185, 80, 0.1);
    color: var(--green);
    border: 1px solid rgba(63, 185, 80, 0.2);
  }
  .status.error {
    display: block;
    background: rgba(248, 81, 73, 0.1);
    color: var(--red);
    border: 1px solid rgba(248, 81, 73, 0.2);
  }
  .meta {
    text-align: center;
    margin-top: 1.5rem;
    color: var(--muted);
    font-size: 0.75rem;
  }
  .guide {
    background: rgba(88, 166, 255, 0.05);
    border: 1px solid rgba(88, 166, 255, 0.15);
    border-radius: 10px;
    padding: 1.25rem;
    margin-bottom: 1.25rem;
    font-size: 0.875rem;
    line-height: 1.7;
    color: var(--muted);
  }
  .guide ol, .guide ul {
    padding-left: 1.25rem;
    margin: 0.5rem 0;
  }
  .guide li {
    margin-bottom: 0.35rem;
  }
  .guide strong {
    color: var(--text);
  }
  .guide code {
    background: var(--bg);
    padding: 0.1rem 0.4rem;
    border-radius: 4px;
    font-size: 0.8rem;
    color: var(--accent);
  }
  .guide a {
    color: var(--accent);
    text-decoration: none;
  }
  .guide a:hover {
    text-decoration: underline;
  }
  .guide-link {
    display: inline-block;
    margin-top: 0.75rem;
    padding: 0.5rem 1rem;
    background: rgba(88, 166, 255, 0.1);
    border: 1px solid rgba(88, 166, 255, 0.25);
    border-radius: 8px;
    color: var(--accent);
    text-decoration: none;
    font-weight: 500;
    font-size: 0.85rem;
    transition: all 0.15s;
  }
  .guide-link:hover {
    background: rgba(88, 166, 255, 0.2);
    text-decoration: none;
  }
  .single-entry {
    text-align: center;
  }
  .key-label {
    display: block;
    font-family: 'SF Mono', 'Fira Code', monospace;
    font-size: 1.1rem;
    font-weight: 600;
    color: var(--accent);
    margin-bottom: 0.75rem;
    letter-spacing: 0.5px;
  }
  .single-entry .val-input {
    width: 100%;
    padding: 0.75rem;
    font-size: 1rem;
    text-align: center;
  }
  .meta code {
    background: var(--surface);
    padding: 0.15rem 0.4rem;
    border-radius: 4px;
    font-size: 0.7rem;
  }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>🔐 secret portal</h1>
    <p>enter secrets below. they'll be saved server-side.<br>this page expires after one submission.</p>
  </div>
  <div class="card">
    {{if or .Instructions .Link}}<div class="guide">{{.Instructions}}{{if .Link}}<br><a class="guide-link" href="{{.Link}}" target="_blank" rel="noopener">{{.LinkText}}</a>{{end}}</div>{{end}}
    <div id="entries">
      {{if .SingleKey}}<div class="single-entry">
        <label class="key-label">{{.KeyName}}</label>
        <input type="password" class="val-input" id="single-val" placeholder="paste your secret here" spellcheck="false" autocomplete="off">
      </div>{{else}}<div class="entry">
        <input type="text" class="key-input" placeholder="KEY_NAME" spellcheck="false">
        <input type="password" class="val-input" placeholder="value" spellcheck="false">
        <button class="remove-btn" onclick="removeEntry(this)" title="remove">×</button>
      </div>{{end}}
    </div>
    <div class="actions">
      {{if not .SingleKey}}<button class="btn btn-secondary" onclick="addEntry()">+ add</button>{{end}}
      <button class="btn btn-primary" id="submitBtn" onclick="submit()">{{if .SingleKey}}save{{else}}save secrets{{end}}</button>
    </div>
    <div class="status" id="status"></div>
  </div>
  <div class="meta">saving to <code>{{.EnvFile}}</code></div>
</div>
<script>
const TOKEN = "{{.Token}}";
const SINGLE_KEY = {{if .SingleKey}}"{{.KeyName}}"{{else}}null{{end}};

function addEntry() {
  const div = document.createElement('div');
  div.className = 'entry';
  div.innerHTML = ` + "`" + `
    <input type="text" class="key-input" placeholder="KEY_NAME" spellcheck="false">
    <input type="password" class="val-input" placeholder="value" spellcheck="false">
    <button class="remove-btn" onclick="removeEntry(this)" title="remove">×</button>
  ` + "`" + `;
  document.getElementById('entries').appendChild(div);
  div.querySelector('.key-input').focus();
}

function removeEntry(btn) {
  const entries = document.querySelectorAll('.entry');
  if (entries.length > 1) btn.parentElement.remove();
}

async function submit() {
  const secrets = {};

  if (SINGLE_KEY) {
    const v = document.getElementById('single-val').value;
    if (!v) {
      showStatus('please enter the secret value', 'error');
      return;
    }
    secrets[SINGLE_KEY] = v;
  } else {
    const entries = document.querySelectorAll('.entry');
    let valid = true;
    entries.forEach(e => {
      const k = e.querySelector('.key-input').value.trim();
      const v = e.querySelector('.val-input').value;
      if (k && v) secrets[k] = v;
      else if (k || v) valid = false;
    });
    if (!valid || Object.keys(secrets).length === 0) {
      showStatus('enter at least one complete key-value pair', 'error');
      return;
    }
  }

  const btn = document.getElementById('submitBtn');
  btn.disabled = true;
  btn.textContent = 'saving...';

  try {
    const res = await fetch('/save', {
      method: 'POST',
      headers: { 'Content-Type': 'application/json', 'X-Token': TOKEN },
      body: JSON.stringify(secrets)
    });
    const data = await res.json();
    if (data.ok) {
      showStatus(` + "`" + `saved ${data.count} secret(s). this portal is now closed.` + "`" + `, 'success');
      btn.textContent = 'done ✓';
      document.querySelectorAll('input').forEach(i => i.disabled = true);
    } else {
      showStatus(data.error || 'something went wrong', 'error');
      btn.disabled = false;
      btn.textContent = 'save secrets';
    }
  } catch (e) {
    showStatus('connection failed — server may have shut down', 'error');
    btn.disabled = false;
    btn.textContent = 'save secrets';
  }
}

function showStatus(msg, type) {
  const el = document.getElementById('status');
  el.textContent = msg;
  el.className = 'status ' + type;
}

// focus first input
(document.getElementById('single-val') || document.querySelector('.key-input')).focus();
</script>
</body>
</html>`
