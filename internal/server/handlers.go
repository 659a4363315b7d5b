// Package server exposes HTTP handlers, including authenticated WebSocket
// upgrades, health checks, and the built-in test page.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
)

// WebSocketHandler authenticates the request, upgrades it and hands the
// connection to the gateway. An invalid or missing credential is answered
// with 401 before any upgrade, so nothing is registered.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	actorID, err := g.Authenticate(r)
	if err != nil {
		g.log.Info("websocket_auth_rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket_upgrade_failed", "remote", r.RemoteAddr, "actor", actorID, "error", err)
		return
	}

	g.connect(conn, actorID, r.RemoteAddr)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chatgate is running!")
}

// TestPageHandler serves an HTML page for poking at the WebSocket protocol
// by hand: connect with a token, send raw envelopes, watch events arrive.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		slog.Warn("write_test_page_failed", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>chatgate WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"] { width: 420px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>chatgate WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="tokenInput" placeholder="Bearer token">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="frameInput" disabled
               value='{"event":"conversation:join","data":{"conversationId":""}}'>
        <button id="sendButton" onclick="sendFrame()" disabled>Send</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        const eventsDiv = document.getElementById('events');
        const tokenInput = document.getElementById('tokenInput');
        const frameInput = document.getElementById('frameInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.margin = '3px 0';
            el.style.color = color || 'gray';
            el.textContent = text;
            eventsDiv.appendChild(el);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            frameInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const token = encodeURIComponent(tokenInput.value.trim());
            ws = new WebSocket(scheme + location.host + '/ws?token=' + token);
            ws.onopen = function() { addLine('connected'); updateStatus(true); };
            ws.onmessage = function(event) { addLine('<- ' + event.data, 'green'); };
            ws.onclose = function() { addLine('connection closed'); updateStatus(false); ws = null; };
            ws.onerror = function() { addLine('connection error', 'red'); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendFrame() {
            const frame = frameInput.value.trim();
            if (frame && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(frame);
                addLine('-> ' + frame, 'blue');
            }
        }

        frameInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendFrame();
            }
        });
    </script>
</body>
</html>`
