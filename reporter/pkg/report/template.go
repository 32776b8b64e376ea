package report

const page = `<!DOCTYPE html>
<html>
<head>
    <title>Raport analizy glukozy</title>
    <meta charset="utf-8">
    <link href="https://cdn.jsdelivr.net/npm/bootstrap@5.1.3/dist/css/bootstrap.min.css" rel="stylesheet">
    <style>
        body { padding: 20px; }
        .plot { width: 100%; }
        .note-edit { display: none; padding: 10px; margin-top: 5px; }
        .note-edit textarea { width: 100%; margin-bottom: 10px; }
        .note-text { cursor: pointer; padding: 2px 5px; border-radius: 3px; }
        .note-text:hover { background-color: #f8f9fa; }
    </style>
    <script>
        function toggleNoteEdit(timestamp) {
            const editDiv = document.getElementById('note-edit-' + timestamp);
            editDiv.style.display = editDiv.style.display === 'block' ? 'none' : 'block';
        }

        function saveNote(timestamp) {
            const note = document.getElementById('note-textarea-' + timestamp).value;
            fetch('/save_note', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ timestamp, note })
            })
            .then(response => response.json())
            .then(data => {
                if (data.success) {
                    document.getElementById('note-text-' + timestamp).textContent = note;
                    document.getElementById('note-edit-' + timestamp).style.display = 'none';
                }
            });
        }
    </script>
</head>
<body>
    <div class="container">
        <h1 class="mb-4">Raport analizy glukozy</h1>
        <div class="plots-container">
        {{- range .Days}}
            <div class="row mb-5">
                <div class="col-12">
                    <h4 class="bg-light p-3 mb-4 rounded">{{.Date}}</h4>
                </div>
                <div class="col-md-9">
                    {{- if .Plot}}
                    <img class="plot" src="{{.Plot}}" alt="{{.Date}}">
                    {{- end}}
                    {{- if .Notes}}
                    <div class="card mt-3">
                        <div class="card-body">
                            <h6>Notatki:</h6>
                            <ul class="mb-0">
                            {{- range .Notes}}
                                <li>
                                    <strong>{{.Time}}</strong>: <span class="note-text" id="note-text-{{.Key}}"
                                        onclick="toggleNoteEdit({{.Key}})">{{.Text}}</span>
                                    <div id="note-edit-{{.Key}}" class="note-edit">
                                        <textarea id="note-textarea-{{.Key}}" class="form-control">{{.Text}}</textarea>
                                        <button class="btn btn-sm btn-primary" onclick="saveNote({{.Key}})">Zapisz</button>
                                        <button class="btn btn-sm btn-secondary" onclick="toggleNoteEdit({{.Key}})">Anuluj</button>
                                    </div>
                                </li>
                            {{- end}}
                            </ul>
                        </div>
                    </div>
                    {{- end}}
                </div>
                <div class="col-md-3">
                    <div class="card {{.Severity}}">
                        <div class="card-body">
                            <h5 class="card-title">Przekroczenia glukozy: {{.Count}}</h5>
                            {{- if .Periods}}
                            <ul class="list-unstyled mb-2">
                            {{- range .Periods}}
                                <li>{{.Start}}: <strong>{{.Points}}</strong></li>
                            {{- end}}
                            </ul>
                            {{- else}}
                            <p class="card-text">Brak przekroczeń</p>
                            {{- end}}
                            <p class="card-text mt-2"><strong>Razem: {{.Total}}</strong></p>
                            <p class="card-text small text-muted">Średnia: {{printf "%.0f" .Average}} · W zakresie: {{printf "%.0f" .InRange}}%</p>
                        </div>
                    </div>
                </div>
            </div>
        {{- end}}
        </div>
    </div>
</body>
</html>
`
