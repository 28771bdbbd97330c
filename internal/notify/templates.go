package notify

import "html/template"

const alertLayout = `<!DOCTYPE html>
<html>
<head>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
.container { max-width: 600px; margin: 0 auto; padding: 20px; }
.header { background: {{.Accent}}; color: white; padding: 20px; border-radius: 5px 5px 0 0; }
.content { background: #f9f9f9; padding: 20px; border: 1px solid #ddd; }
.user-details { background: white; padding: 15px; margin: 15px 0; border-left: 4px solid {{.Accent}}; }
.detail-row { margin: 8px 0; }
.label { font-weight: bold; color: #666; }
.footer { background: #333; color: white; padding: 15px; border-radius: 0 0 5px 5px; text-align: center; font-size: 12px; }
.box { background: {{.BoxBackground}}; border: 1px solid {{.Accent}}; padding: 15px; margin: 15px 0; border-radius: 5px; }
</style>
</head>
<body>
<div class="container">
<div class="header"><h2>{{.Heading}}</h2></div>
<div class="content">
<p>Dear Admin,</p>
<p>{{.Intro}}</p>
<div class="user-details">
<h3 style="margin-top: 0;">Employee Details</h3>
<div class="detail-row"><span class="label">Name:</span> {{.FirstName}} {{.LastName}}</div>
<div class="detail-row"><span class="label">Job Role:</span> {{.JobRole}}</div>
<div class="detail-row"><span class="label">Employee ID:</span> {{.UserID}}</div>
<div class="detail-row"><span class="label">Session ID:</span> {{.SessionID}}</div>
</div>
<div class="box">{{template "box" .}}</div>
{{template "note" .}}
</div>
<div class="footer">
<p>Employee Activity Monitoring System</p>
<p>This is an automated notification. Please do not reply to this email.</p>
</div>
</div>
</body>
</html>`

const idleWarningParts = `
{{define "box"}}<strong>Idle Duration:</strong> {{.IdleMinutes}} consecutive minutes<br>
<strong>Time:</strong> {{.Time}}{{end}}
{{define "note"}}<p><strong>Important:</strong> The session will be automatically stopped if the employee continues to be idle for a total of {{.AutoStopMinutes}} minutes.</p>{{end}}`

const autoStopParts = `
{{define "box"}}<strong>Total Idle Time:</strong> {{.IdleMinutes}}+ consecutive minutes<br>
<strong>Action Taken:</strong> Session automatically stopped<br>
<strong>Time:</strong> {{.Time}}{{end}}
{{define "note"}}<p><strong>Note:</strong> The employee may need to be contacted to verify their work status.</p>{{end}}`

var (
	idleWarningTemplate = template.Must(template.Must(template.New("idle_warning").Parse(alertLayout)).Parse(idleWarningParts))
	autoStopTemplate    = template.Must(template.Must(template.New("auto_stop").Parse(alertLayout)).Parse(autoStopParts))
)

type alertView struct {
	Heading         string
	Intro           string
	Accent          string
	BoxBackground   string
	FirstName       string
	LastName        string
	JobRole         string
	UserID          string
	SessionID       string
	IdleMinutes     int
	AutoStopMinutes int
	Time            string
}
