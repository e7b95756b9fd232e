package main

import (
	"net/http"
)

// handleRoot serves the single-page UI.
func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if !rateLimitAllow(r.RemoteAddr) {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != "GET" && r.Method != "HEAD" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>TriCoder</title>
<style>
:root { --bg:#0f1117; --panel:#181b24; --border:#2a2f3d; --text:#e6e8ee; --dim:#8b92a5; --accent:#4f8cff; --err:#ff5f6d; --ok:#3ecf8e; }
* { box-sizing:border-box; margin:0; padding:0; }
body { font-family:-apple-system,'Segoe UI',Roboto,sans-serif; background:var(--bg); color:var(--text); height:100vh; display:flex; }
#sidebar { width:260px; background:var(--panel); border-right:1px solid var(--border); display:flex; flex-direction:column; }
#sidebar h1 { font-size:18px; padding:16px; border-bottom:1px solid var(--border); }
#sidebar .section { padding:8px 12px; font-size:11px; text-transform:uppercase; color:var(--dim); }
#sessions, #folders { overflow-y:auto; flex:1; }
.item { padding:8px 16px; cursor:pointer; font-size:13px; white-space:nowrap; overflow:hidden; text-overflow:ellipsis; display:flex; justify-content:space-between; }
.item:hover { background:#202430; }
.item.active { background:#232a3d; border-left:2px solid var(--accent); }
.item .del { color:var(--dim); visibility:hidden; }
.item:hover .del { visibility:visible; }
#sidebar footer { padding:12px; border-top:1px solid var(--border); display:flex; gap:8px; flex-wrap:wrap; }
button { background:var(--panel); color:var(--text); border:1px solid var(--border); border-radius:6px; padding:6px 12px; cursor:pointer; font-size:13px; }
button:hover { border-color:var(--accent); }
button:disabled { opacity:.4; cursor:default; }
button.primary { background:var(--accent); border-color:var(--accent); color:#fff; }
#main { flex:1; display:flex; flex-direction:column; min-width:0; }
#turns { flex:1; overflow-y:auto; padding:20px; }
.turn { margin-bottom:28px; }
.turn .user { background:#232a3d; border-radius:10px; padding:12px 14px; margin-bottom:10px; white-space:pre-wrap; }
.tabs { display:flex; gap:4px; margin-bottom:0; }
.tab { padding:6px 14px; border:1px solid var(--border); border-bottom:none; border-radius:8px 8px 0 0; font-size:13px; cursor:pointer; color:var(--dim); }
.tab.active { background:var(--panel); color:var(--text); }
.tab.loading::after { content:' \2026'; color:var(--accent); }
.tab.error { color:var(--err); }
.pane { background:var(--panel); border:1px solid var(--border); border-radius:0 8px 8px 8px; padding:14px; white-space:pre-wrap; font-size:14px; line-height:1.5; }
.pane .errmsg { color:var(--err); }
.pane .actions { margin-top:10px; display:flex; gap:8px; }
.verdict { margin-top:10px; background:#1c2130; border:1px solid var(--border); border-radius:8px; padding:12px; font-size:13px; }
.verdict .winner { color:var(--ok); font-weight:600; }
.scorebar { display:flex; gap:12px; margin-top:6px; color:var(--dim); }
#composer { border-top:1px solid var(--border); padding:14px 20px; }
#composer .row { display:flex; gap:8px; align-items:flex-end; }
textarea { flex:1; background:var(--panel); color:var(--text); border:1px solid var(--border); border-radius:8px; padding:10px; font:inherit; resize:vertical; min-height:60px; }
#composer .opts { display:flex; gap:10px; margin-top:8px; align-items:center; font-size:12px; color:var(--dim); flex-wrap:wrap; }
select { background:var(--panel); color:var(--text); border:1px solid var(--border); border-radius:6px; padding:4px 8px; }
#attachName { color:var(--accent); }
dialog { background:var(--panel); color:var(--text); border:1px solid var(--border); border-radius:10px; padding:20px; min-width:380px; }
dialog::backdrop { background:rgba(0,0,0,.6); }
dialog input { width:100%; background:var(--bg); color:var(--text); border:1px solid var(--border); border-radius:6px; padding:8px; margin:6px 0 14px; }
#previewFrame { width:100%; height:300px; background:#fff; border:none; border-radius:8px; margin-top:10px; }
.listening { color:var(--err) !important; }
</style>
</head>
<body>
<div id="sidebar">
  <h1>TriCoder</h1>
  <div class="section">Sessions <button id="newSession" style="float:right;padding:0 8px">+</button></div>
  <div id="sessions"></div>
  <div class="section">Snippet Folders <button id="newFolder" style="float:right;padding:0 8px">+</button></div>
  <div id="folders"></div>
  <footer>
    <button id="exportBtn">Export</button>
    <button id="importBtn">Import</button>
    <button id="settingsBtn">Settings</button>
  </footer>
</div>
<div id="main">
  <div id="turns"></div>
  <div id="composer">
    <div class="row">
      <textarea id="input" placeholder="Ask your coding question&hellip;"></textarea>
      <button id="micBtn" title="Dictate">&#127908;</button>
      <button id="attachBtn" title="Attach file">&#128206;</button>
      <button id="sendBtn" class="primary">Send</button>
    </div>
    <div class="opts">
      <label>Tool <select id="toolSel"><option value="">None</option></select></label>
      <label><input type="checkbox" id="deepThink"> Deep thinking</label>
      <label>Language <select id="langSel">
        <option value="en">English</option><option value="es">Spanish</option>
        <option value="fr">French</option><option value="de">German</option>
        <option value="ja">Japanese</option><option value="zh">Chinese</option>
      </select></label>
      <span id="attachName"></span>
      <input type="file" id="fileInput" hidden>
      <input type="file" id="backupInput" accept=".json" hidden>
    </div>
  </div>
</div>
<dialog id="settingsDlg">
  <h3>API Keys</h3>
  <p style="font-size:12px;color:var(--dim);margin:8px 0">Keys are stored encrypted on the server.</p>
  <label>DeepSeek API key <span id="dsStatus"></span></label>
  <input id="dsKey" type="password" placeholder="sk-...">
  <label>Gemini API key <span id="gmStatus"></span></label>
  <input id="gmKey" type="password" placeholder="AIza...">
  <div style="display:flex;gap:8px;justify-content:flex-end">
    <button onclick="settingsDlg.close()">Close</button>
    <button class="primary" id="saveKeys">Save</button>
  </div>
</dialog>
<script>
'use strict';
let sessions = [], folders = [], personas = [];
let activeSession = null, attachment = null, pollTimer = null;
const $ = id => document.getElementById(id);
const api = (path, opts) => fetch('/api' + path, opts).then(r => {
  if (!r.ok) return r.json().then(b => { throw new Error(b.error || r.statusText); });
  return r.json();
});

async function boot() {
  const p = await api('/personas'); personas = p.personas;
  const t = await api('/tools');
  for (const tool of t.tools) {
    const o = document.createElement('option');
    o.value = tool.id; o.textContent = tool.label;
    $('toolSel').appendChild(o);
  }
  await refreshSessions(); await refreshFolders();
}

async function refreshSessions() {
  const r = await api('/sessions');
  sessions = (r.sessions || []).sort((a, b) => b.timestamp - a.timestamp);
  renderSessions();
}

function renderSessions() {
  const el = $('sessions'); el.innerHTML = '';
  for (const s of sessions) {
    const d = document.createElement('div');
    d.className = 'item' + (activeSession && s.id === activeSession.id ? ' active' : '');
    d.innerHTML = '<span></span><span class="del">&times;</span>';
    d.firstChild.textContent = s.title || 'Untitled';
    d.onclick = () => openSession(s.id);
    d.lastChild.onclick = async e => {
      e.stopPropagation();
      await api('/sessions/' + s.id, { method: 'DELETE' });
      if (activeSession && activeSession.id === s.id) { activeSession = null; renderTurns(); }
      refreshSessions();
    };
    el.appendChild(d);
  }
}

async function openSession(id) {
  activeSession = await api('/sessions/' + id);
  renderSessions(); renderTurns(); schedulePoll();
}

function hasInflight() {
  if (!activeSession) return false;
  return (activeSession.messages || []).some(t =>
    (t.models || []).some(m => m.loading) || t.comparison_loading ||
    (t.consensus && t.consensus.loading));
}

function schedulePoll() {
  clearTimeout(pollTimer);
  if (hasInflight()) pollTimer = setTimeout(async () => {
    const keep = activeSession.id;
    activeSession = await api('/sessions/' + keep);
    renderTurns(); schedulePoll();
  }, 1200);
}

function renderTurns() {
  const el = $('turns'); el.innerHTML = '';
  if (!activeSession) return;
  (activeSession.messages || []).forEach(turn => el.appendChild(renderTurn(turn)));
  el.scrollTop = el.scrollHeight;
}

function renderTurn(turn) {
  const wrap = document.createElement('div'); wrap.className = 'turn';
  const user = document.createElement('div'); user.className = 'user';
  user.textContent = turn.input.user_text +
    (turn.input.attachment ? '\n📎 ' + turn.input.attachment.name : '');
  wrap.appendChild(user);

  const entries = turn.models || [];
  const tabs = document.createElement('div'); tabs.className = 'tabs';
  const pane = document.createElement('div'); pane.className = 'pane';
  const sel = turn._tab || 0;
  entries.forEach((m, i) => {
    const tab = document.createElement('div');
    tab.className = 'tab' + (i === sel ? ' active' : '') +
      (m.loading ? ' loading' : '') + (m.error ? ' error' : '');
    tab.textContent = personas[i] ? personas[i].name : 'Model ' + (i + 1);
    tab.onclick = () => { turn._tab = i; renderTurns(); };
    tabs.appendChild(tab);
  });
  wrap.appendChild(tabs);

  const cur = entries[sel] || {};
  if (cur.loading) pane.textContent = 'Thinking…';
  else if (cur.error) {
    pane.innerHTML = '<span class="errmsg"></span>';
    pane.firstChild.textContent = cur.error;
    const retry = document.createElement('button');
    retry.textContent = 'Retry';
    retry.onclick = () => api('/retry', post({ session_id: activeSession.id, turn_id: turn.id, index: sel }))
      .then(() => openSession(activeSession.id)).catch(alert);
    pane.appendChild(document.createElement('br')); pane.appendChild(retry);
  } else {
    pane.textContent = cur.text || '';
    const actions = document.createElement('div'); actions.className = 'actions';
    actions.appendChild(saveBtn(cur.text));
    if (/<\s*(html|body|div|canvas|style|script)/i.test(cur.text || '')) {
      const pv = document.createElement('button'); pv.textContent = 'Preview';
      pv.onclick = () => togglePreview(pane, cur.text);
      actions.appendChild(pv);
    }
    pane.appendChild(actions);
  }
  wrap.appendChild(pane);

  const settled = entries.length && entries.every(m => !m.loading);
  const anyOk = entries.some(m => !m.loading && !m.error && m.text);
  const bar = document.createElement('div'); bar.className = 'actions'; bar.style.marginTop = '10px';
  const judgeBtn = document.createElement('button');
  judgeBtn.textContent = turn.comparison_loading ? 'Judging…' : (turn.comparison ? 'Re-judge' : 'Judge');
  judgeBtn.disabled = !settled || !anyOk || !!turn.comparison_loading;
  judgeBtn.onclick = () => api('/judge', post({ session_id: activeSession.id, turn_id: turn.id }))
    .then(() => openSession(activeSession.id)).catch(alert);
  bar.appendChild(judgeBtn);
  if (turn.comparison) {
    const consBtn = document.createElement('button');
    const cl = turn.consensus && turn.consensus.loading;
    consBtn.textContent = cl ? 'Synthesizing…' : 'Consensus';
    consBtn.disabled = !!cl;
    consBtn.onclick = () => api('/consensus', post({ session_id: activeSession.id, turn_id: turn.id }))
      .then(() => openSession(activeSession.id)).catch(alert);
    bar.appendChild(consBtn);
  }
  wrap.appendChild(bar);

  if (turn.comparison_error) {
    const v = document.createElement('div'); v.className = 'verdict';
    v.innerHTML = '<span class="errmsg"></span>';
    v.firstChild.textContent = turn.comparison_error;
    wrap.appendChild(v);
  }
  if (turn.comparison) {
    const v = document.createElement('div'); v.className = 'verdict';
    const w = document.createElement('div');
    w.innerHTML = 'Winner: <span class="winner"></span>';
    w.querySelector('.winner').textContent = turn.comparison.winner;
    v.appendChild(w);
    const reason = document.createElement('div'); reason.textContent = turn.comparison.reasoning;
    reason.style.marginTop = '6px'; v.appendChild(reason);
    const scores = document.createElement('div'); scores.className = 'scorebar';
    (turn.comparison.scores || []).forEach(s => {
      const b = document.createElement('span');
      b.textContent = s.model + ': ' + s.performance + '/10';
      scores.appendChild(b);
    });
    v.appendChild(scores);
    v.appendChild(saveBtn(turn.comparison.reasoning));
    wrap.appendChild(v);
  }
  if (turn.consensus && !turn.consensus.loading) {
    const v = document.createElement('div'); v.className = 'verdict';
    if (turn.consensus.error) {
      v.innerHTML = '<span class="errmsg"></span>';
      v.firstChild.textContent = turn.consensus.error;
    } else {
      v.textContent = turn.consensus.text;
      v.appendChild(saveBtn(turn.consensus.text));
    }
    wrap.appendChild(v);
  }
  return wrap;
}

function togglePreview(pane, html) {
  const old = pane.querySelector('iframe');
  if (old) { old.remove(); return; }
  const f = document.createElement('iframe');
  f.id = 'previewFrame'; f.sandbox = 'allow-scripts';
  pane.appendChild(f); f.srcdoc = html;
}

function saveBtn(text) {
  const b = document.createElement('button');
  b.textContent = 'Save to folder';
  b.onclick = async () => {
    if (!folders.length) { alert('Create a folder first'); return; }
    const name = prompt('Save to folder:\n' + folders.map(f => f.name).join(', '), folders[0].name);
    const folder = folders.find(f => f.name === name);
    if (!folder) return;
    await api('/folders/' + folder.id + '/snippets', post({ code: text, language: 'text' }));
    refreshFolders();
  };
  return b;
}

async function refreshFolders() {
  const r = await api('/folders'); folders = r.folders || []; renderFolders();
}

function renderFolders() {
  const el = $('folders'); el.innerHTML = '';
  for (const f of folders) {
    const d = document.createElement('div'); d.className = 'item';
    d.innerHTML = '<span></span><span class="del">&times;</span>';
    d.firstChild.textContent = f.name + ' (' + (f.snippets || []).length + ')';
    d.onclick = () => showFolder(f);
    d.lastChild.onclick = async e => {
      e.stopPropagation();
      await api('/folders/' + f.id, { method: 'DELETE' }); refreshFolders();
    };
    el.appendChild(d);
  }
}

function showFolder(f) {
  const names = (f.snippets || []).map(s => '• ' + s.title).join('\n') || '(empty)';
  alert(f.name + '\n\n' + names);
}

const post = body => ({ method: 'POST', headers: { 'Content-Type': 'application/json' }, body: JSON.stringify(body) });

async function send() {
  const text = $('input').value.trim();
  if (!text && !attachment) return;
  const body = {
    session_id: activeSession ? activeSession.id : '',
    user_text: text,
    tool_preset: $('toolSel').value,
    deep_thinking: $('deepThink').checked,
    language: $('langSel').value,
  };
  if (attachment) body.attachment = attachment;
  try {
    const r = await api('/turns', post(body));
    $('input').value = ''; attachment = null; $('attachName').textContent = '';
    await refreshSessions(); await openSession(r.session_id);
  } catch (e) {
    if (/credential|key/i.test(e.message)) { settingsDlg.showModal(); loadKeyStatus(); }
    else alert(e.message);
  }
}

$('sendBtn').onclick = send;
$('input').addEventListener('keydown', e => {
  if (e.key === 'Enter' && !e.shiftKey) { e.preventDefault(); send(); }
});
$('newSession').onclick = () => { activeSession = null; renderSessions(); renderTurns(); };
$('newFolder').onclick = async () => {
  const name = prompt('Folder name');
  if (name) { await api('/folders', post({ name })); refreshFolders(); }
};
$('attachBtn').onclick = () => $('fileInput').click();
$('fileInput').onchange = e => {
  const file = e.target.files[0]; if (!file) return;
  const reader = new FileReader();
  reader.onload = () => {
    attachment = {
      name: file.name,
      mime_type: file.type || 'application/octet-stream',
      data: reader.result.split(',')[1],
    };
    $('attachName').textContent = '📎 ' + file.name;
  };
  reader.readAsDataURL(file);
};
$('exportBtn').onclick = () => { location.href = '/api/export'; };
$('importBtn').onclick = () => $('backupInput').click();
$('backupInput').onchange = async e => {
  const file = e.target.files[0]; if (!file) return;
  const text = await file.text();
  try {
    const r = await fetch('/api/import', { method: 'POST', body: text });
    const b = await r.json();
    if (!r.ok) throw new Error(b.error);
    alert('Imported ' + b.sessions + ' sessions, ' + b.folders + ' folders');
    refreshSessions(); refreshFolders();
  } catch (err) { alert('Import failed: ' + err.message); }
};

$('settingsBtn').onclick = () => { settingsDlg.showModal(); loadKeyStatus(); };
async function loadKeyStatus() {
  const s = await api('/keys');
  $('dsStatus').textContent = s.deepseek_api_key ? '✓ set' : 'not set';
  $('gmStatus').textContent = s.gemini_api_key ? '✓ set' : 'not set';
}
$('saveKeys').onclick = async () => {
  if ($('dsKey').value) await api('/keys', post({ name: 'deepseek_api_key', value: $('dsKey').value }));
  if ($('gmKey').value) await api('/keys', post({ name: 'gemini_api_key', value: $('gmKey').value }));
  $('dsKey').value = ''; $('gmKey').value = '';
  loadKeyStatus();
};

// Voice dictation via the browser speech API where available
const SR = window.SpeechRecognition || window.webkitSpeechRecognition;
if (SR) {
  const rec = new SR(); rec.continuous = false; rec.interimResults = false;
  let listening = false;
  rec.onresult = e => { $('input').value += (($('input').value && ' ') || '') + e.results[0][0].transcript; };
  rec.onend = () => { listening = false; $('micBtn').classList.remove('listening'); };
  $('micBtn').onclick = () => {
    if (listening) { rec.stop(); return; }
    listening = true; $('micBtn').classList.add('listening');
    rec.lang = $('langSel').value; rec.start();
  };
} else {
  $('micBtn').disabled = true;
}

boot().catch(e => alert('Failed to load: ' + e.message));
</script>
</body>
</html>
`
