package api

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>DataFed Core Dashboard</title>
<style>
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root{
  --bg:#0f1117;--bg-card:#161b22;--bg-card-hover:#1c2129;
  --border:#30363d;--text:#e1e4e8;--text-muted:#8b949e;
  --primary:#58a6ff;--green:#3fb950;--red:#f85149;--yellow:#d29922;
  --radius:8px;--radius-sm:4px;
}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;background:var(--bg);color:var(--text);line-height:1.5;min-height:100vh}
a{color:var(--primary);text-decoration:none}
button{cursor:pointer;font-family:inherit;font-size:inherit;background:var(--bg-card-hover);color:var(--text);border:1px solid var(--border);border-radius:var(--radius-sm);padding:6px 12px}
button:hover{border-color:var(--primary)}
.container{max-width:1200px;margin:0 auto;padding:0 24px 48px}
header{background:var(--bg-card);border-bottom:1px solid var(--border);padding:12px 24px;position:sticky;top:0}
.header-inner{max-width:1200px;margin:0 auto;display:flex;align-items:center;gap:16px}
.header-title{font-size:20px;font-weight:700}
.badge{display:inline-flex;align-items:center;gap:4px;padding:2px 10px;border-radius:12px;font-size:12px;font-weight:600;border:1px solid var(--border);margin-left:auto}
.badge-healthy{color:var(--green);border-color:var(--green)}
.badge-unhealthy{color:var(--red);border-color:var(--red)}
.summary{display:grid;grid-template-columns:repeat(4,1fr);gap:16px;margin:24px 0}
.card{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);padding:20px}
.card-label{font-size:12px;text-transform:uppercase;letter-spacing:.5px;color:var(--text-muted);margin-bottom:4px}
.card-value{font-size:32px;font-weight:700}
section{margin-bottom:32px}
section h2{font-size:16px;margin-bottom:12px}
table{width:100%;border-collapse:collapse;background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);overflow:hidden}
th,td{text-align:left;padding:10px 14px;border-bottom:1px solid var(--border);font-size:13px}
th{color:var(--text-muted);text-transform:uppercase;font-size:11px;letter-spacing:.5px}
tr:last-child td{border-bottom:none}
tr:hover{background:var(--bg-card-hover)}
.mono{font-family:ui-monospace,SFMono-Regular,Menlo,monospace;font-size:12px;color:var(--text-muted)}
.toolbar{display:flex;gap:8px;margin-bottom:12px;flex-wrap:wrap}
.toolbar input{background:#0d1117;color:var(--text);border:1px solid var(--border);border-radius:var(--radius-sm);padding:6px 10px;font-size:13px}
.toast{position:fixed;bottom:24px;right:24px;background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius-sm);padding:10px 16px;font-size:13px;display:none}
</style>
</head>
<body>
<header>
  <div class="header-inner">
    <div class="header-title">DataFed Core</div>
    <span id="healthBadge" class="badge">checking…</span>
  </div>
</header>
<div class="container">
  <div class="summary">
    <div class="card"><div class="card-label">Repositories</div><div class="card-value" id="numRepos">–</div></div>
    <div class="card"><div class="card-label">Active grants</div><div class="card-value" id="numGrants">–</div></div>
    <div class="card"><div class="card-label">Queue depth</div><div class="card-value" id="queueTotal">–</div></div>
    <div class="card"><div class="card-label">Uptime</div><div class="card-value" id="uptime">–</div></div>
  </div>

  <section>
    <h2>Repositories</h2>
    <table>
      <thead><tr><th>ID</th><th>Address</th><th>Endpoint</th><th>Path</th></tr></thead>
      <tbody id="reposBody"><tr><td colspan="4">Loading…</td></tr></tbody>
    </table>
  </section>

  <section>
    <h2>Maintenance queues</h2>
    <table>
      <thead><tr><th>Queue</th><th>Depth</th></tr></thead>
      <tbody id="queuesBody"><tr><td colspan="2">Loading…</td></tr></tbody>
    </table>
  </section>

  <section>
    <h2>Test enqueue</h2>
    <div class="toolbar">
      <input id="testRepoID" placeholder="repo id (e.g. repo/a)">
      <input id="testPathOrID" placeholder="path or user/project id">
      <button onclick="testEnqueue('data_delete')">data_delete</button>
      <button onclick="testEnqueue('path_create')">path_create</button>
      <button onclick="testEnqueue('path_delete')">path_delete</button>
    </div>
  </section>
</div>
<div id="toast" class="toast"></div>
<script>
function apiFetch(path, opts) {
  return fetch(path, opts).then(function(resp) {
    if (!resp.ok) { return resp.json().then(function(b) { throw new Error(b.error || resp.statusText); }); }
    return resp.status === 204 ? null : resp.json();
  });
}
function toast(message) {
  var t = document.getElementById('toast');
  t.textContent = message;
  t.style.display = 'block';
  setTimeout(function() { t.style.display = 'none'; }, 3000);
}
function esc(s) { return String(s).replace(/[&<>"']/g, function(c) { return {'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;',"'":'&#39;'}[c]; }); }

function refreshStatus() {
  apiFetch('/status').then(function(s) {
    document.getElementById('numRepos').textContent = s.num_repos;
    document.getElementById('numGrants').textContent = s.active_grants;
    var d = s.queue_depths || {};
    document.getElementById('queueTotal').textContent = (d.data_delete||0) + (d.path_create||0) + (d.path_delete||0);
    document.getElementById('uptime').textContent = Math.floor(s.uptime_seconds/60) + 'm';
    var badge = document.getElementById('healthBadge');
    badge.textContent = s.running ? 'running' : 'stopped';
    badge.className = 'badge ' + (s.running ? 'badge-healthy' : 'badge-unhealthy');
  }).catch(function(e) { toast('status error: ' + e.message); });
}

function refreshRepos() {
  apiFetch('/repos').then(function(repos) {
    var body = document.getElementById('reposBody');
    if (!repos || !repos.length) { body.innerHTML = '<tr><td colspan="4">No repositories loaded</td></tr>'; return; }
    body.innerHTML = repos.map(function(r) {
      return '<tr><td>' + esc(r.ID) + '</td><td class="mono">' + esc(r.Address) + '</td><td class="mono">' + esc(r.Endpoint) + '</td><td class="mono">' + esc(r.Path) + '</td></tr>';
    }).join('');
  }).catch(function(e) { toast('repos error: ' + e.message); });
}

function refreshQueues() {
  apiFetch('/queues').then(function(q) {
    var body = document.getElementById('queuesBody');
    body.innerHTML = [
      ['data_delete', q.data_delete],
      ['path_create', q.path_create],
      ['path_delete', q.path_delete],
    ].map(function(row) { return '<tr><td>' + row[0] + '</td><td>' + row[1] + '</td></tr>'; }).join('');
  }).catch(function(e) { toast('queues error: ' + e.message); });
}

function testEnqueue(kind) {
  var repoID = document.getElementById('testRepoID').value.trim();
  var val = document.getElementById('testPathOrID').value.trim();
  if (!repoID || !val) { toast('repo id and path/id are required'); return; }
  var body = kind === 'data_delete' ? { repo_id: repoID, path: val } : { repo_id: repoID, id: val };
  apiFetch('/queues/' + kind + '/test', { method: 'POST', headers: {'Content-Type':'application/json'}, body: JSON.stringify(body) })
    .then(function() { toast(kind + ' enqueued'); refreshQueues(); })
    .catch(function(e) { toast('enqueue error: ' + e.message); });
}

function refreshAll() { refreshStatus(); refreshRepos(); refreshQueues(); }
refreshAll();
setInterval(refreshAll, 5000);
</script>
</body>
</html>
`
