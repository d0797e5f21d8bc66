package bridge

import "strings"

// RubyNetPreambleSource returns the Ruby source defining the singleton
// $net and top-level net method exposed to the guest, talking to
// the same per-invocation loopback proxy endpoint as the Python preamble.
func RubyNetPreambleSource(netBaseURL string) string {
	src := `
require 'net/http'
require 'json'
require 'uri'

class KestrelNet
  def http(method, url, body = nil, headers = nil)
    uri = URI('` + netBaseSentinel + `')
    payload = { 'method' => method, 'url' => url, 'body' => body, 'headers' => headers || {} }
    req = Net::HTTP::Post.new(uri)
    req['Content-Type'] = 'application/json'
    req.body = payload.to_json
    res = Net::HTTP.start(uri.hostname, uri.port) { |http| http.request(req) }
    JSON.parse(res.body)
  end

  def get(url, headers = nil)
    http('GET', url, nil, headers)
  end

  def post(url, body = nil, headers = nil)
    http('POST', url, body, headers)
  end
end

$net = KestrelNet.new

def net
  $net
end
`
	return strings.Replace(src, netBaseSentinel, netBaseURL, 1)
}

// RubyPlatformPreambleSource is the Ruby analogue of
// PythonPlatformPreambleSource: it defines the top-level platform object
// backed by kv/sql calls relayed to the per-invocation loopback server.
func RubyPlatformPreambleSource(kvBaseURL, sqlBaseURL string) string {
	return `
require 'net/http'
require 'json'
require 'uri'

class KestrelKv
  def initialize(base)
    @uri = URI(base)
  end

  def _call(op, key, value = nil)
    req = Net::HTTP::Post.new(@uri)
    req['Content-Type'] = 'application/json'
    req.body = { 'op' => op, 'key' => key, 'value' => value }.to_json
    res = Net::HTTP.start(@uri.hostname, @uri.port) { |http| http.request(req) }
    JSON.parse(res.body)
  end

  def get(key)
    result = _call('get', key)
    result['found'] ? result['value'] : nil
  end

  def put(key, value)
    _call('put', key, value)
  end

  def delete(key)
    _call('delete', key)
  end
end

class KestrelSql
  def initialize(base)
    @uri = URI(base)
  end

  def _call(op, query, args)
    req = Net::HTTP::Post.new(@uri)
    req['Content-Type'] = 'application/json'
    req.body = { 'op' => op, 'query' => query, 'args' => args || [] }.to_json
    res = Net::HTTP.start(@uri.hostname, @uri.port) { |http| http.request(req) }
    JSON.parse(res.body)
  end

  def query(query, *args)
    _call('query', query, args)
  end

  def exec(query, *args)
    _call('exec', query, args)
  end
end

class KestrelPlatform
  attr_reader :kv, :sql

  def initialize(kv_base, sql_base)
    @kv = KestrelKv.new(kv_base)
    @sql = KestrelSql.new(sql_base)
  end
end

$platform = KestrelPlatform.new('` + kvBaseURL + `', '` + sqlBaseURL + `')

def platform
  $platform
end
`
}

// RubyTrampolineSource generates the analogous zero-argument trampoline
// lambda for Ruby.
func RubyTrampolineSource(functionName string, event map[string]any) string {
	return "__faas_invoke__ = lambda { " + functionName + "(" + RubyLiteral(event) + ") }\n"
}
