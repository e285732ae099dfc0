package email

// Email templates using HTML

const summaryTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: Arial, sans-serif; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #2c3e50; color: #fff; padding: 16px; }
        .total { font-size: 28px; font-weight: bold; margin: 16px 0; }
        table { width: 100%; border-collapse: collapse; margin: 12px 0; }
        th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #ddd; }
        .footer { color: #999; font-size: 12px; margin-top: 24px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h2>{{.EventName}}</h2>
            <p>Started {{.StartedAt}}</p>
        </div>

        <div class="total">Total: {{.Total}}</div>
        <p>{{.ItemCount}} items across {{.TabCount}} tabs.</p>

        {{if .Categories}}
        <h3>By category</h3>
        <table>
            <tr><th>Category</th><th>Amount</th></tr>
            {{range .Categories}}
            <tr><td>{{.Category}}</td><td>{{.Amount}}</td></tr>
            {{end}}
        </table>
        {{end}}

        {{if .Hours}}
        <h3>By hour</h3>
        <table>
            <tr><th>Hour</th><th>Amount</th></tr>
            {{range .Hours}}
            <tr><td>{{.Hour}}</td><td>{{.Amount}}</td></tr>
            {{end}}
        </table>
        {{end}}

        <div class="footer">Sent by CaterPOS</div>
    </div>
</body>
</html>
`
