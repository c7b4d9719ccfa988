// Answerbox WebSocket transport
//
// Features:
// - One engine instance per deployment; groups provide isolation within it
// - Each connection gets an opaque UUID identity for its lifetime
// - Inbound requests are answered synchronously on the caller's own stream;
//   pushes to other connections ride their per-connection send channels
// - Clients remember {name, role, group} locally and drive the reconnect
//   path themselves after a drop; a rejected reconnect falls back to fresh
//   registration
// - In-browser QR button to share the game URL, backed by go-qrcode

package main

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type   string `json:"type"`             // "register", "reconnect", "message", "answer"
	Name   string `json:"name,omitempty"`   // register / reconnect
	Group  int    `json:"group,omitempty"`  // register / reconnect
	Role   Role   `json:"role,omitempty"`   // reconnect
	ToRole Role   `json:"toRole,omitempty"` // message
	Text   string `json:"text,omitempty"`   // message
	Answer string `json:"answer,omitempty"` // answer
}

// AckMessage confirms a request that has no richer success payload.
type AckMessage struct {
	Type string `json:"type"` // "ack"
	Op   string `json:"op"`
	OK   bool   `json:"ok"`
}

// ErrorMessage reports a failed request back to its caller only.
type ErrorMessage struct {
	Type   string `json:"type"` // "error"
	Op     string `json:"op"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errInvalidInput):
		return "invalid_input"
	case errors.Is(err, errRolesExhausted):
		return "roles_exhausted"
	case errors.Is(err, errRoleOccupied):
		return "role_occupied"
	case errors.Is(err, errUnauthorized):
		return "unauthorized"
	case errors.Is(err, errDirectionForbidden):
		return "direction_forbidden"
	case errors.Is(err, errForbidden):
		return "forbidden"
	case errors.Is(err, errRecipientNotFound):
		return "recipient_not_found"
	}

	return "internal"
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	conn *websocket.Conn
	id   string
}

func (c *Client) sendError(g *Game, op string, err error) {
	g.push(c.id, ErrorMessage{
		Type:   "error",
		Op:     op,
		Code:   errorCode(err),
		Reason: err.Error(),
	})
}

func (c *Client) readPump(g *Game) {
	defer func() {
		g.disconnect(c.id)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "register":
			if _, err := g.register(c.id, msg.Name, msg.Group); err != nil {
				c.sendError(g, msg.Type, err)
			}
		case "reconnect":
			if _, err := g.reconnect(c.id, msg.Name, msg.Role, msg.Group); err != nil {
				c.sendError(g, msg.Type, err)
			}
		case "message":
			if err := g.sendMessage(c.id, msg.ToRole, msg.Text); err != nil {
				c.sendError(g, msg.Type, err)
			} else {
				g.push(c.id, AckMessage{Type: "ack", Op: msg.Type, OK: true})
			}
		case "answer":
			if err := g.submitAnswer(c.id, msg.Answer); err != nil {
				c.sendError(g, msg.Type, err)
			} else {
				g.push(c.id, AckMessage{Type: "ack", Op: msg.Type, OK: true})
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump(events <-chan any) {
	defer c.conn.Close()

	for msg := range events {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func serveWS(cfg *Config, g *Game) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			id:   uuid.NewString(),
		}

		events := g.attach(client.id)

		logf(cfg, "GAME: Connection %s opened from %s", client.id, realIP(r))

		go client.writePump(events)
		client.readPump(g)
	}
}

// QR handler: generates a PNG QR code for the game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../qr; strip the trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func gamePageHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		// The client page inlines its script and styles and dials back over ws.
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'unsafe-inline'; style-src 'unsafe-inline'; img-src 'self'; connect-src 'self' ws: wss:")

		_, _ = w.Write([]byte(gameHTML))
	}
}

// registerAnswerGame sets up routes so that:
//   - $path      → HTML client
//   - $path/ws   → WebSocket endpoint
//   - $path/qr   → PNG QR code linking to the game
func registerAnswerGame(cfg *Config, path string, mux *httprouter.Router) {
	game := newGame(cfg)

	mux.GET(cfg.prefix+path, gamePageHandler(cfg))
	mux.GET(cfg.prefix+path+"/ws", serveWS(cfg, game))
	mux.GET(cfg.prefix+path+"/qr", qrHandler)
}

// Simple HTML client
const gameHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Answerbox</title>
<style>
  body { font-family: system-ui, -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; max-width: 40rem; }
  h1 { margin-bottom: 0.5rem; }
  #status { margin-bottom: 1rem; font-size: 0.9rem; color: #555; }
  #roster li { padding: 0.15rem 0; }
  #log { list-style: none; padding: 0; max-height: 16rem; overflow-y: auto; border: 1px solid #ddd; }
  #log li { padding: 0.25rem 0.5rem; border-bottom: 1px solid #eee; }
  #result { font-weight: bold; color: #246; }
  input, select, button { padding: 0.4rem; margin: 0.2rem 0; }
  .hidden { display: none; }
</style>
</head>
<body>
<h1>Answerbox</h1>
<div id="status">Connecting…</div>

<div id="register">
  <input id="name" placeholder="Your name">
  <select id="group"></select>
  <button id="join">Join</button>
</div>

<div id="play" class="hidden">
  <p>You are role <strong id="myrole"></strong> in group <span id="mygroup"></span>.
     <img id="card" alt="role card" height="48"></p>
  <ul id="roster"></ul>
  <div>
    <select id="torole"></select>
    <input id="text" placeholder="Message">
    <button id="send">Send</button>
  </div>
  <div id="answerbox" class="hidden">
    <input id="answer" placeholder="Final answer">
    <button id="submit">Submit answer</button>
  </div>
  <ul id="log"></ul>
  <p id="result"></p>
  <p><a href="" id="qr-link">Share via QR</a></p>
</div>

<script>
(function() {
  const $ = (id) => document.getElementById(id);
  const storageKey = 'answerbox_identity';

  let identity = null;
  try { identity = JSON.parse(localStorage.getItem(storageKey)); } catch (e) {}

  const proto = (location.protocol === 'https:') ? 'wss://' : 'ws://';
  const base = location.pathname.replace(/\/$/, '');
  const ws = new WebSocket(proto + location.host + base + '/ws');

  $('qr-link').href = base + '/qr';

  function send(msg) { ws.send(JSON.stringify(msg)); }

  function showPlay(role, group) {
    $('register').classList.add('hidden');
    $('play').classList.remove('hidden');
    $('myrole').textContent = role;
    $('mygroup').textContent = group;

    const targets = (role === 'B')
      ? ['A', 'C', 'D', 'E', 'F']
      : ['B'];
    $('torole').innerHTML = '';
    targets.forEach(function(r) {
      const opt = document.createElement('option');
      opt.value = r;
      opt.textContent = 'To ' + r;
      $('torole').appendChild(opt);
    });

    $('answerbox').classList.toggle('hidden', role !== 'C');
  }

  function appendLog(text) {
    const li = document.createElement('li');
    li.textContent = text;
    $('log').appendChild(li);
    $('log').scrollTop = $('log').scrollHeight;
  }

  ws.onopen = function() {
    $('status').textContent = 'Connected.';
    if (identity && identity.name && identity.role && identity.group) {
      send({ type: 'reconnect', name: identity.name, role: identity.role, group: identity.group });
    }
  };

  ws.onmessage = function(event) {
    let msg;
    try { msg = JSON.parse(event.data); } catch (e) { return; }

    switch (msg.type) {
    case 'session_info':
      $('group').innerHTML = '';
      for (let i = 1; i <= msg.groups; i++) {
        const opt = document.createElement('option');
        opt.value = i;
        opt.textContent = 'Group ' + i;
        $('group').appendChild(opt);
      }
      break;
    case 'registered':
      identity = { name: msg.name, role: msg.role, group: msg.group };
      localStorage.setItem(storageKey, JSON.stringify(identity));
      showPlay(msg.role, msg.group);
      break;
    case 'card':
      $('card').src = msg.image;
      break;
    case 'players_update':
      $('roster').innerHTML = '';
      msg.players.forEach(function(p) {
        const li = document.createElement('li');
        li.textContent = p.role + ': ' + p.name;
        $('roster').appendChild(li);
      });
      break;
    case 'private_message':
      appendLog(msg.fromRole + ' (' + msg.fromName + '): ' + msg.text);
      break;
    case 'game_result':
      $('result').textContent = msg.message;
      break;
    case 'error':
      if (msg.op === 'reconnect') {
        localStorage.removeItem(storageKey);
        identity = null;
        $('status').textContent = 'Could not resume session; please register.';
      } else {
        $('status').textContent = msg.reason;
      }
      break;
    }
  };

  ws.onclose = function() {
    $('status').textContent = 'Disconnected.';
  };

  $('join').onclick = function() {
    const name = $('name').value.trim();
    if (!name) { $('status').textContent = 'Please enter a name.'; return; }
    send({ type: 'register', name: name, group: parseInt($('group').value, 10) || 1 });
  };

  $('send').onclick = function() {
    const text = $('text').value.trim();
    if (!text) { return; }
    send({ type: 'message', toRole: $('torole').value, text: text });
    appendLog('me → ' + $('torole').value + ': ' + text);
    $('text').value = '';
  };

  $('submit').onclick = function() {
    const answer = $('answer').value.trim();
    if (!answer) { return; }
    send({ type: 'answer', answer: answer });
    $('answer').value = '';
  };
})();
</script>
</body>
</html>
`
