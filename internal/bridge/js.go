package bridge

import "fmt"

// JSModuleWrapper wraps a CommonJS dependency's source in the standard
// (exports, module, require) function form so it can be invoked once and
// have its module.exports captured.
func JSModuleWrapper(source string) string {
	return "(function(exports, module, require) {\n" + source + "\n})"
}

// JSNetShimSource is injected into a JS context ahead of the guest source
// when enableNetwork is true. It defines globalThis.net (http/get/post)
// and globalThis.fetch on top of a single low-level host binding,
// __kestrel_net_http, installed separately by the engine via
// Runtime.Set. fetch resolves to an object exposing ok/status/
// headers.get/headers.has/url/text()/json().
const JSNetShimSource = `
globalThis.net = {
  http: function(method, url, body, headers) {
    return __kestrel_net_http(method, url, body || null, headers || {});
  },
  get: function(url, headers) {
    return globalThis.net.http('GET', url, null, headers);
  },
  post: function(url, body, headers) {
    return globalThis.net.http('POST', url, body, headers);
  },
};

globalThis.fetch = function(input, init) {
  init = init || {};
  var method = init.method || 'GET';
  var headers = init.headers || {};
  var body = init.body || null;
  var raw = globalThis.net.http(method, input, body, headers);
  return Promise.resolve(raw).then(function(raw) {
    var lowerHeaders = {};
    Object.keys(raw.headers || {}).forEach(function(k) {
      lowerHeaders[k.toLowerCase()] = raw.headers[k];
    });
    return {
      ok: raw.status >= 200 && raw.status < 300,
      status: raw.status,
      url: input,
      headers: {
        get: function(name) {
          var v = lowerHeaders[String(name).toLowerCase()];
          return v === undefined ? null : v;
        },
        has: function(name) {
          return lowerHeaders[String(name).toLowerCase()] !== undefined;
        },
      },
      text: function() {
        return Promise.resolve(raw.body);
      },
      json: function() {
        return new Promise(function(resolve, reject) {
          try {
            resolve(JSON.parse(raw.body));
          } catch (e) {
            reject(e);
          }
        });
      },
    };
  });
};
`

// JSRequireNotFoundMessage formats the error text JS require(name) raises
// when name is absent from the supplied dependency map.
func JSRequireNotFoundMessage(name string) string {
	return fmt.Sprintf("Module not found: %s", name)
}
